// Package config loads postmind settings from a YAML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the YAML file, POSTMIND_*
// environment variables, command-line flags (applied by the caller).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ha1tch/postmind"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
	"github.com/ha1tch/postmind/pkg/profile"
	"github.com/ha1tch/postmind/pkg/remote"
)

// Environment variables read by ApplyEnv.
const (
	EnvURI       = "POSTMIND_URI"
	EnvProfile   = "POSTMIND_PROFILE"
	EnvLogLevel  = "POSTMIND_LOG_LEVEL"
	EnvFunctions = "POSTMIND_FUNCTIONS"
	EnvWorkers   = "POSTMIND_WORKERS"
)

// DefaultFile is the config file looked up in the home directory.
const DefaultFile = ".postmind.yaml"

// Config holds every setting.
type Config struct {
	URI        string `yaml:"uri,omitempty"`
	Profile    string `yaml:"profile,omitempty"`
	ProfileDir string `yaml:"profile_dir,omitempty"`

	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
	// LogFile enables a rotating log file (1 MB, one backup).
	LogFile string `yaml:"log_file,omitempty"`

	FunctionDir string `yaml:"functions,omitempty"`
	Watch       bool   `yaml:"watch,omitempty"`

	Workers int    `yaml:"workers,omitempty"`
	Policy  string `yaml:"policy,omitempty"`

	IncludeSystem bool     `yaml:"include_system,omitempty"`
	Schemas       []string `yaml:"schemas,omitempty"`

	Output string `yaml:"output,omitempty"`
	Limit  int    `yaml:"limit,omitempty"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Profile:   profile.Default,
		LogLevel:  "warn",
		LogFormat: "text",
		Workers:   4,
		Policy:    remote.LastWriteWins.String(),
		Output:    "ascii",
		Limit:     postmind.DefaultLimit,
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrap(err, errors.ErrCodeConfigParse, "cannot read config file").
			WithField("path", path).Err()
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, errors.ErrCodeConfigParse, "invalid config file").
			WithField("path", path).Err()
	}
	return cfg, nil
}

// DefaultPath returns ~/.postmind.yaml, or "" when the home directory is
// unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFile)
}

// ApplyEnv overrides cfg with the POSTMIND_* variables found by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvURI); v != "" {
		c.URI = v
	}
	if v := getenv(EnvProfile); v != "" {
		c.Profile = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvFunctions); v != "" {
		c.FunctionDir = v
	}
	if v := getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Newf(errors.ErrCodeConfigInvalid, "%s must be an integer, got %q", EnvWorkers, v).Err()
		}
		c.Workers = n
	}
	return nil
}

// Validate checks the settings.
func (c Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid log_level").Err()
	}
	if _, err := log.ParseFormat(c.LogFormat); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid log_format").Err()
	}
	if _, err := remote.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "workers must not be negative, got %d", c.Workers).Err()
	}
	if c.Limit < 0 {
		return errors.Newf(errors.ErrCodeConfigInvalid, "limit must not be negative, got %d", c.Limit).Err()
	}
	if c.Watch && c.FunctionDir == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "watch requires a functions directory").Err()
	}
	if c.URI != "" && !strings.Contains(c.URI, "://") {
		return errors.Newf(errors.ErrCodeConfigInvalid, "uri %q has no scheme", c.URI).Err()
	}
	return nil
}

// LogConfig returns the logger settings.
func (c Config) LogConfig() (log.Config, error) {
	cfg := log.DefaultConfig()
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return cfg, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid log_level").Err()
	}
	format, err := log.ParseFormat(c.LogFormat)
	if err != nil {
		return cfg, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid log_format").Err()
	}
	cfg.DefaultLevel = level
	cfg.Format = format
	cfg.File = c.LogFile
	return cfg, nil
}

// Options converts the settings into Open options.
func (c Config) Options() (postmind.Options, error) {
	if err := c.Validate(); err != nil {
		return postmind.Options{}, err
	}
	logCfg, err := c.LogConfig()
	if err != nil {
		return postmind.Options{}, err
	}
	policy, _ := remote.ParsePolicy(c.Policy)
	return postmind.Options{
		URI:           c.URI,
		Profile:       c.Profile,
		ProfileDir:    c.ProfileDir,
		LogConfig:     &logCfg,
		FunctionDir:   c.FunctionDir,
		Watch:         c.Watch,
		Workers:       c.Workers,
		Policy:        policy,
		IncludeSystem: c.IncludeSystem,
		Schemas:       c.Schemas,
	}, nil
}
