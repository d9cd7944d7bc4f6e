package config

import (
	"os"
	"path/filepath"
)

const appName = "assessor"

// Dirs resolves XDG base directories for the assessor.
type Dirs struct {
	configHome string
	dataHome   string
	runtimeDir string
}

func NewDirs() Dirs {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
		if home == "" {
			home = os.TempDir()
		}
	}
	d := Dirs{
		configHome: os.Getenv("XDG_CONFIG_HOME"),
		dataHome:   os.Getenv("XDG_DATA_HOME"),
		runtimeDir: os.Getenv("XDG_RUNTIME_DIR"),
	}
	if d.configHome == "" {
		d.configHome = filepath.Join(home, ".config")
	}
	if d.dataHome == "" {
		d.dataHome = filepath.Join(home, ".local", "share")
	}
	if d.runtimeDir == "" {
		d.runtimeDir = filepath.Join(os.TempDir(), appName+"-runtime-"+os.Getenv("USER"))
	}
	return d
}

// ConfigFile is $XDG_CONFIG_HOME/assessor/config.toml.
func (d Dirs) ConfigFile() string {
	return filepath.Join(d.configHome, appName, "config.toml")
}

// ContentDir holds problems/ and tests/ when no S3 bucket is configured.
func (d Dirs) ContentDir() string {
	return filepath.Join(d.dataHome, appName, "content")
}

// WorkDir is where the process runner creates its sandbox directories.
func (d Dirs) WorkDir() string {
	return filepath.Join(d.runtimeDir, appName)
}
