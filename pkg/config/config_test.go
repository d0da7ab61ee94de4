package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
	"github.com/ha1tch/postmind/pkg/remote"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", false)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 1000, cfg.Limit)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postmind.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
uri: postgres://analyst@db/warehouse
log_level: debug
log_format: json
functions: /srv/functions
watch: true
workers: 8
policy: version-qualified
schemas: [public, sales]
`), 0o644))

	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, "postgres://analyst@db/warehouse", cfg.URI)
	assert.Equal(t, []string{"public", "sales"}, cfg.Schemas)
	assert.Equal(t, "ascii", cfg.Output, "unset keys keep their defaults")

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, remote.VersionQualified, opts.Policy)
	assert.Equal(t, 8, opts.Workers)
	assert.True(t, opts.Watch)
	require.NotNil(t, opts.LogConfig)
	assert.Equal(t, log.LevelDebug, opts.LogConfig.DefaultLevel)
	assert.Equal(t, log.FormatJSON, opts.LogConfig.Format)
}

func TestLoadMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := Load(missing, true)
	assert.NoError(t, err)

	_, err = Load(missing, false)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigParse))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: [1, 2"), 0o644))
	_, err := Load(path, false)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigParse))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{
		EnvURI:       "sqlite://:memory:",
		EnvProfile:   "work",
		EnvLogLevel:  "error",
		EnvFunctions: "/fn",
		EnvWorkers:   "2",
	})))
	assert.Equal(t, "sqlite://:memory:", cfg.URI)
	assert.Equal(t, "work", cfg.Profile)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "/fn", cfg.FunctionDir)
	assert.Equal(t, 2, cfg.Workers)

	err := cfg.ApplyEnv(env(map[string]string{EnvWorkers: "many"}))
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"level":   func(c *Config) { c.LogLevel = "loud" },
		"format":  func(c *Config) { c.LogFormat = "xml" },
		"policy":  func(c *Config) { c.Policy = "first-wins" },
		"workers": func(c *Config) { c.Workers = -1 },
		"limit":   func(c *Config) { c.Limit = -5 },
		"watch":   func(c *Config) { c.Watch = true },
		"uri":     func(c *Config) { c.URI = "localhost" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryCredential), "config errors share the 1xxx range")

			_, err = cfg.Options()
			assert.Error(t, err)
		})
	}
}
