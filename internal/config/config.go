// Package config loads the assessor configuration from a TOML file, an
// optional .env file and ASSESSOR_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/assessor/internal/runner"
)

// Duration is a time.Duration written as "1m30s" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Log struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"no_color"`
}

type Sandbox struct {
	// "process" or "isolate".
	Runner           string   `toml:"runner"`
	WorkDir          string   `toml:"work_dir"`
	PoolSize         int      `toml:"pool_size"`
	CompileTimeout   Duration `toml:"compile_timeout"`
	DefaultTimeLimit Duration `toml:"default_time_limit"`
	DefaultMemoryKiB int64    `toml:"default_memory_kib"`
	Grace            Duration `toml:"grace"`
	NetworkIsolation bool     `toml:"network_isolation"`
}

type Grading struct {
	Retries      int `toml:"retries"`
	MaxCases     int `toml:"max_cases"`
	MaxCodeBytes int `toml:"max_code_bytes"`
}

type Session struct {
	// "memory" or "redis".
	Store            string   `toml:"store"`
	SweepInterval    Duration `toml:"sweep_interval"`
	IdleAbandonAfter Duration `toml:"idle_abandon_after"`
}

type Content struct {
	Dir      string   `toml:"dir"`
	S3Bucket string   `toml:"s3_bucket"`
	S3Prefix string   `toml:"s3_prefix"`
	CacheTTL Duration `toml:"cache_ttl"`
}

type HTTP struct {
	Addr string `toml:"addr"`
}

type NATS struct {
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type Postgres struct {
	DSN string `toml:"dsn"`
}

type AWS struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
}

type SQS struct {
	RequestQueueURL string `toml:"request_queue_url"`
	Batch           int    `toml:"batch"`
}

type Config struct {
	Log       Log               `toml:"log"`
	Sandbox   Sandbox           `toml:"sandbox"`
	Grading   Grading           `toml:"grading"`
	Session   Session           `toml:"session"`
	Content   Content           `toml:"content"`
	HTTP      HTTP              `toml:"http"`
	NATS      NATS              `toml:"nats"`
	Redis     Redis             `toml:"redis"`
	Postgres  Postgres          `toml:"postgres"`
	AWS       AWS               `toml:"aws"`
	SQS       SQS               `toml:"sqs"`
	Languages []runner.Language `toml:"languages"`
}

func Default() *Config {
	dirs := NewDirs()
	return &Config{
		Log: Log{Level: "info"},
		Sandbox: Sandbox{
			Runner:           "process",
			WorkDir:          dirs.WorkDir(),
			PoolSize:         runtime.NumCPU(),
			CompileTimeout:   Duration{30 * time.Second},
			DefaultTimeLimit: Duration{2 * time.Second},
			DefaultMemoryKiB: 256 * 1024,
			Grace:            Duration{500 * time.Millisecond},
		},
		Grading: Grading{Retries: 1, MaxCases: 200, MaxCodeBytes: 64 << 10},
		Session: Session{Store: "memory", SweepInterval: Duration{30 * time.Second}},
		Content: Content{Dir: dirs.ContentDir(), S3Prefix: "assessor", CacheTTL: Duration{5 * time.Minute}},
		HTTP:    HTTP{Addr: ":8080"},
		NATS:    NATS{Prefix: "assessor"},
		AWS:     AWS{Region: "eu-central-1"},
		SQS:     SQS{Batch: 1},
	}
}

// Load reads the TOML file at path over the defaults. With an empty path
// the XDG config file is used when it exists.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = NewDirs().ConfigFile()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := Decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := loadDotenv(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Decode parses TOML into cfg. Unknown keys are rejected.
func Decode(data []byte, cfg *Config) error {
	return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
}

func loadDotenv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// applyEnv overrides connection settings and secrets from ASSESSOR_*
// variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"ASSESSOR_LOG_LEVEL":         &c.Log.Level,
		"ASSESSOR_SANDBOX_RUNNER":    &c.Sandbox.Runner,
		"ASSESSOR_HTTP_ADDR":         &c.HTTP.Addr,
		"ASSESSOR_NATS_URL":          &c.NATS.URL,
		"ASSESSOR_REDIS_ADDR":        &c.Redis.Addr,
		"ASSESSOR_REDIS_PASSWORD":    &c.Redis.Password,
		"ASSESSOR_POSTGRES_DSN":      &c.Postgres.DSN,
		"ASSESSOR_SQS_REQUEST_QUEUE": &c.SQS.RequestQueueURL,
		"ASSESSOR_S3_BUCKET":         &c.Content.S3Bucket,
		"ASSESSOR_CONTENT_DIR":       &c.Content.Dir,
		"ASSESSOR_AWS_REGION":        &c.AWS.Region,
		"ASSESSOR_AWS_PROFILE":       &c.AWS.Profile,
		"ASSESSOR_SESSION_STORE":     &c.Session.Store,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	if v := getenv("ASSESSOR_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ASSESSOR_POOL_SIZE: %w", err)
		}
		c.Sandbox.PoolSize = n
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Sandbox.Runner {
	case "process", "isolate":
	default:
		return fmt.Errorf("sandbox.runner must be process or isolate, got %q", c.Sandbox.Runner)
	}
	switch c.Session.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("session.store is redis but redis.addr is empty")
		}
	default:
		return fmt.Errorf("session.store must be memory or redis, got %q", c.Session.Store)
	}
	if c.Sandbox.PoolSize < 1 {
		return fmt.Errorf("sandbox.pool_size must be positive, got %d", c.Sandbox.PoolSize)
	}
	if c.Sandbox.DefaultTimeLimit.Duration <= 0 {
		return errors.New("sandbox.default_time_limit must be positive")
	}
	if c.Grading.Retries < 0 {
		return fmt.Errorf("grading.retries must not be negative, got %d", c.Grading.Retries)
	}
	_, err := c.Catalog()
	return err
}

// Catalog builds the language catalog, falling back to the built-in
// languages when none are configured.
func (c *Config) Catalog() (*runner.Catalog, error) {
	if len(c.Languages) == 0 {
		return runner.NewCatalog(runner.DefaultLanguages())
	}
	return runner.NewCatalog(c.Languages)
}
