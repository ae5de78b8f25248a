// Package appconfig loads the user-level weft configuration file: defaults
// that apply across studies (which task server to dispatch to, which log
// level to run at) when a specification or CLI flag doesn't say otherwise.
package appconfig

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/weftrun/weft/pkg/errkind"
)

// Config is the app.yaml schema. Every field is optional; a zero Config is
// the same as no config file at all.
type Config struct {
	TaskServer string `yaml:"task_server,omitempty"`
	LogLevel   string `yaml:"log_level,omitempty"`
	Workspace  string `yaml:"workspace,omitempty"`
}

// Default returns the configuration weft ships with before any app.yaml is
// written: local-only execution, info-level logging, runs under cwd.
func Default() *Config {
	return &Config{
		TaskServer: "local",
		LogLevel:   "info",
		Workspace:  ".",
	}
}

// DefaultPath is where `weft config` writes and `--config` looks by default:
// $HOME/.weft/app.yaml, following the teacher's convention of a dotdir under
// the user's home for tool-level state.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving home directory")
	}
	return filepath.Join(home, ".weft", "app.yaml"), nil
}

// Load reads and parses path. A missing file is not an error: it returns
// Default().
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading app config %s", path)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errkind.Wrap(errkind.SpecInvalid, err, "parsing app config YAML")
	}
	return cfg, nil
}

// Write serializes cfg to path, creating its parent directory if needed.
func Write(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshaling app config")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
