// Package config loads and saves the project's .astidx/project.yaml
// file, mirroring the CLI config convention: a versioned YAML document
// discovered by walking up from the working directory. ASTIDX_CONFIG_PATH
// can name the file instead, and ASTIDX_PERF_STATS sets the perf_stats
// default written by Default; no environment variable overrides a field
// of a loaded file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/opencodeindex/astidx/pkg/errs"
)

const (
	DefaultConfigDir  = ".astidx"
	DefaultConfigFile = "project.yaml"
	configVersion     = "1"
)

// Config is the on-disk shape of .astidx/project.yaml.
type Config struct {
	Version   string   `yaml:"version"`
	ModuleID  string   `yaml:"module_id"`
	DataDir   string   `yaml:"data_dir"`
	MaxFiles  int      `yaml:"max_files"`
	Ignore    []string `yaml:"ignore"`
	PerfStats bool     `yaml:"perf_stats"`
}

// Default returns a Config with sensible defaults for moduleID.
func Default(moduleID string) *Config {
	return &Config{
		Version:  configVersion,
		ModuleID: moduleID,
		DataDir:  filepath.Join(DefaultConfigDir, "data"),
		MaxFiles: 200000,
		Ignore: []string{
			".git/**",
			"node_modules/**",
			"vendor/**",
			"dist/**",
			"build/**",
		},
		PerfStats: getEnvBool("ASTIDX_PERF_STATS"),
	}
}

// Load reads and parses the config at path. If path is empty it
// discovers .astidx/project.yaml by walking up from the current working
// directory (or ASTIDX_CONFIG_PATH, if set).
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ASTIDX_CONFIG_PATH")
	}
	if path == "" {
		found, err := discover()
		if err != nil {
			return nil, err
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewInput("cannot read configuration file", err).
			WithHint(fmt.Sprintf("check that %s exists and is readable", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.NewInput("invalid configuration format", err).
			WithHint("run 'astidx init --force' to regenerate the configuration file")
	}
	if cfg.Version != "" && cfg.Version != configVersion {
		return nil, errs.NewInput(
			fmt.Sprintf("unsupported configuration version %q (expected %q)", cfg.Version, configVersion),
			nil,
		).WithHint("run 'astidx init --force' to regenerate the configuration file")
	}

	return &cfg, nil
}

// Save marshals cfg as YAML and writes it to path, creating parent
// directories as needed.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.NewInternal("cannot encode configuration", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errs.NewInternal("cannot create configuration directory", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return errs.NewInternal("cannot write configuration file", err)
	}
	return nil
}

// Path returns the default .astidx/project.yaml location under dir.
func Path(dir string) string {
	return filepath.Join(dir, DefaultConfigDir, DefaultConfigFile)
}

func discover() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", errs.NewInternal("cannot determine working directory", err)
	}
	for {
		candidate := Path(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errs.NewInput(
				"no .astidx/project.yaml found",
				nil,
			).WithHint("run 'astidx init' to create one")
		}
		dir = parent
	}
}

func getEnvBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true" || v == "yes"
}
