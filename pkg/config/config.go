// Package config manages merge session preferences and the .gomerge
// control directory layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// ControlDir is the per-tree control directory holding configuration
	// and merge state.
	ControlDir = ".gomerge"
	// ConfigFile is the TOML preferences file inside ControlDir.
	ConfigFile = "config.toml"
)

// Config holds the user-tunable merge preferences.
type Config struct {
	// Algorithm names the default text merge algorithm: merge3, weave,
	// lca or diff3.
	Algorithm string `toml:"algorithm"`
	// ShowBase includes a base section inside conflict markers.
	ShowBase bool `toml:"show_base"`
	// Reprocess runs the conflict-reduction pass on conflict regions.
	Reprocess bool `toml:"reprocess"`
	// Diff3Path overrides the external diff3 binary location.
	Diff3Path string `toml:"diff3_path"`

	path string // control directory this config was loaded from
}

// Default returns the built-in preferences.
func Default() *Config {
	return &Config{Algorithm: "merge3"}
}

// FindRoot walks up from dir looking for a control directory.
func FindRoot(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return "", err
		}
	}
	for {
		ctl := filepath.Join(dir, ControlDir)
		if info, err := os.Stat(ctl); err == nil && info.IsDir() {
			return ctl, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a gomerge tree (or any parent up to root)")
		}
		dir = parent
	}
}

// Load reads the preferences from the control directory at ctlPath.
// A missing file yields the defaults rather than an error.
func Load(ctlPath string) (*Config, error) {
	cfg := Default()
	cfg.path = ctlPath
	data, err := os.ReadFile(filepath.Join(ctlPath, ConfigFile))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the preferences back to the control directory.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("config has no control directory")
	}
	f, err := os.Create(filepath.Join(c.path, ConfigFile))
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// ControlPath returns the control directory this config belongs to.
func (c *Config) ControlPath() string { return c.path }
