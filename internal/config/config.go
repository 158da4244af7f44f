// Package config loads bisque.yaml, the settings file of the bisque command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jward/bisque/internal/logging"
)

// FileName is the config file looked up in the working directory.
const FileName = "bisque.yaml"

// Environment overrides, applied after the file is read.
const (
	EnvPath    = "BISQUE_PATH"
	EnvBaseDir = "BISQUE_BASE_DIR"
)

// Config is the contents of bisque.yaml.
type Config struct {
	// BaseDir holds materialized results, one entry per provenance key.
	BaseDir string `yaml:"base_dir" validate:"required"`

	// Ledger is the SQLite file recording published artifacts. Empty
	// disables the ledger.
	Ledger string `yaml:"ledger"`

	// Roots are the directories whose files count as local source when
	// job kinds are scanned for imports.
	Roots []string `yaml:"roots" validate:"dive,required"`

	// Parallel bounds concurrently running jobs. Zero means one per CPU.
	Parallel int `yaml:"parallel" validate:"gte=0"`

	Log logging.Config `yaml:"log"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		BaseDir: ".bisque/store",
		Ledger:  ".bisque/ledger.db",
		Log:     logging.Default(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error. Relative paths in
// the file are resolved against the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.resolve(filepath.Dir(path))
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.BaseDir = abs(c.BaseDir)
	c.Ledger = abs(c.Ledger)
	for i, r := range c.Roots {
		c.Roots[i] = abs(r)
	}
	if o := c.Log.Output; o != "stdout" && o != "stderr" {
		c.Log.Output = abs(o)
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBaseDir); v != "" {
		c.BaseDir = v
	}
	if v := os.Getenv(EnvPath); v != "" {
		c.Roots = nil
		for _, r := range strings.Split(v, string(os.PathListSeparator)) {
			if r != "" {
				c.Roots = append(c.Roots, r)
			}
		}
	}
}
