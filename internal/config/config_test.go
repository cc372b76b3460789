package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at an empty directory and clears DOCRUN_* variables
// that could leak in from the developer's shell.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		EnvConfigFile, "DOCRUN_PLAN", "DOCRUN_ENV_FILE", "DOCRUN_TIMEOUT", "DOCRUN_CHDIR",
		"DOCRUN_DOCKER_IMAGE", "DOCRUN_DOCKER_PULL", "DOCRUN_DOCKER_HOST",
		"DOCRUN_LOG_LEVEL", "DOCRUN_LOG_FORMAT", "DOCRUN_LOG_NO_COLOR",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return home
}

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("plan", "", "")
	fs.Duration("timeout", 0, "")
	fs.Bool("chdir", false, "")
	fs.String("docker-image", "", "")
	fs.String("log-level", "info", "")
	return fs
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Empty(t, c.Plan)
	assert.Zero(t, c.Timeout)
	assert.False(t, c.Chdir)
	assert.Empty(t, c.Docker.Image)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
}

func TestLoad_DefaultConfigFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, filepath.Join(home, ".config", "docrun", "config.toml"), `
plan = "tests/docrun.yaml"
timeout = "90s"
env_file = ".env.local"

[docker]
image = "python:3.12"
pull = true

[log]
level = "debug"
no_color = true
`)

	c, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "tests/docrun.yaml", c.Plan)
	assert.Equal(t, 90*time.Second, c.Timeout)
	assert.Equal(t, ".env.local", c.EnvFile)
	assert.Equal(t, "python:3.12", c.Docker.Image)
	assert.True(t, c.Docker.Pull)
	assert.Equal(t, "debug", c.Log.Level)
	assert.True(t, c.Log.NoColor)
}

// TestLoad_Precedence verifies flags > env > file > defaults.
func TestLoad_Precedence(t *testing.T) {
	home := isolate(t)
	cfgPath := filepath.Join(home, "custom.toml")
	writeConfig(t, cfgPath, `
plan = "from-file.yaml"
timeout = "1m"
chdir = true

[docker]
image = "from-file"
`)
	t.Setenv(EnvConfigFile, cfgPath)
	t.Setenv("DOCRUN_TIMEOUT", "2m")
	t.Setenv("DOCRUN_DOCKER_IMAGE", "from-env")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--docker-image", "from-flag"}))

	c, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "from-file.yaml", c.Plan, "file beats unset flag default")
	assert.Equal(t, 2*time.Minute, c.Timeout, "env beats file")
	assert.Equal(t, "from-flag", c.Docker.Image, "flag beats env")
	assert.True(t, c.Chdir)
	assert.Equal(t, "warn", c.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("explicit config missing", func(t *testing.T) {
		home := isolate(t)
		t.Setenv(EnvConfigFile, filepath.Join(home, "missing.toml"))
		_, err := Load(nil)
		assert.Error(t, err)
	})

	t.Run("malformed config", func(t *testing.T) {
		home := isolate(t)
		writeConfig(t, filepath.Join(home, ".config", "docrun", "config.toml"), "plan = \n")
		_, err := Load(nil)
		assert.Error(t, err)
	})

	t.Run("negative timeout", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCRUN_TIMEOUT", "-5s")
		_, err := Load(nil)
		assert.Error(t, err)
	})

	t.Run("unknown log format", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCRUN_LOG_FORMAT", "xml")
		_, err := Load(nil)
		assert.Error(t, err)
	})
}

func TestPath(t *testing.T) {
	home := isolate(t)
	assert.Equal(t, filepath.Join(home, ".config", "docrun", "config.toml"), Path())

	t.Setenv(EnvConfigFile, "/etc/docrun.toml")
	assert.Equal(t, "/etc/docrun.toml", Path())
}
