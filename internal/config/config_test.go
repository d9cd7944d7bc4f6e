package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[log]
level = "debug"

[sandbox]
runner = "isolate"
pool_size = 3
default_time_limit = "1500ms"
grace = "250ms"

[session]
sweep_interval = "10s"
idle_abandon_after = "45m"

[[languages]]
id = "python3"
name = "Python 3"
code_fname = "main.py"
exec_cmd = "python3 main.py"
`

func TestDecode(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode([]byte(sample), cfg))

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "isolate", cfg.Sandbox.Runner)
	assert.Equal(t, 3, cfg.Sandbox.PoolSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.Sandbox.DefaultTimeLimit.Duration)
	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Grace.Duration)
	assert.Equal(t, 45*time.Minute, cfg.Session.IdleAbandonAfter.Duration)
	// untouched keys keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Sandbox.CompileTimeout.Duration)

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Equal(t, []string{"python3"}, catalog.IDs())
}

func TestDecode_Rejects(t *testing.T) {
	assert.Error(t, Decode([]byte("[sandbox]\nrunnr = \"process\"\n"), Default()))
	assert.Error(t, Decode([]byte("[sandbox]\ngrace = \"soon\"\n"), Default()))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"ASSESSOR_NATS_URL":     "nats://n:4222",
		"ASSESSOR_POSTGRES_DSN": "postgres://x",
		"ASSESSOR_POOL_SIZE":    "7",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, "nats://n:4222", cfg.NATS.URL)
	assert.Equal(t, "postgres://x", cfg.Postgres.DSN)
	assert.Equal(t, 7, cfg.Sandbox.PoolSize)

	env["ASSESSOR_POOL_SIZE"] = "many"
	assert.Error(t, cfg.applyEnv(func(k string) string { return env[k] }))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Session.Store = "redis"
	assert.Error(t, cfg.Validate())
	cfg.Redis.Addr = "localhost:6379"
	assert.NoError(t, cfg.Validate())

	cfg.Sandbox.Runner = "docker"
	assert.Error(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("ASSESSOR_HTTP_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "process", cfg.Sandbox.Runner)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)

	path := filepath.Join(home, "assessor", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "isolate", cfg.Sandbox.Runner)

	_, err = Load(filepath.Join(home, "missing.toml"))
	assert.Error(t, err)
}
