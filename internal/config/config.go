// Package config loads docrun runtime settings (flags, DOCRUN_* environment
// variables, and an optional TOML file) with viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variable overrides
// (DOCRUN_PLAN, DOCRUN_DOCKER_IMAGE, DOCRUN_LOG_LEVEL, ...).
const EnvPrefix = "DOCRUN"

// EnvConfigFile names an explicit config file, replacing the default
// $HOME/.config/docrun/config.toml.
const EnvConfigFile = "DOCRUN_CONFIG"

// Config holds runtime settings. Settings describe how to run on this
// machine; what to run lives in the plan file.
type Config struct {
	// Plan is the plan file path. Empty means search the working directory.
	Plan string

	// EnvFile is an optional .env file overlaying required configuration.
	EnvFile string `mapstructure:"env_file"`

	// Timeout overrides the plan's per-package timeout when non-zero.
	Timeout time.Duration

	// Chdir also switches the process working directory per package.
	Chdir bool

	Docker DockerConfig
	Log    LogConfig
}

// DockerConfig holds containerized engine settings.
type DockerConfig struct {
	// Image, when set, runs the engine in this image even if the plan has
	// no docker block.
	Image string

	// Pull forces an image pull before the run.
	Pull bool

	// Host is the daemon address. Empty falls back to DOCKER_HOST, then
	// the platform socket.
	Host string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string
	Format  string
	NoColor bool `mapstructure:"no_color"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"plan":         "plan",
	"env-file":     "env_file",
	"timeout":      "timeout",
	"chdir":        "chdir",
	"docker-image": "docker.image",
	"docker-pull":  "docker.pull",
	"docker-host":  "docker.host",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"no-color":     "log.no_color",
}

// Load reads configuration from flags, env, and file, in that order of
// precedence. Env var overrides use prefix DOCRUN_. Flags not present in
// flags are skipped, so each command binds only what it defines.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("plan", "")
	v.SetDefault("env_file", "")
	v.SetDefault("timeout", "0s")
	v.SetDefault("chdir", false)
	v.SetDefault("docker.image", "")
	v.SetDefault("docker.pull", false)
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.no_color", false)

	v.SetConfigType("toml")

	explicit := os.Getenv(EnvConfigFile)
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "docrun"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	// The default config file is optional; an explicit one must exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Timeout < 0 {
		return Config{}, fmt.Errorf("invalid timeout %s: must not be negative", c.Timeout)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("invalid log format %q (use text or json)", c.Log.Format)
	}
	return c, nil
}

// Path returns the config file Load reads: $DOCRUN_CONFIG, or the default
// location under $HOME.
func Path() string {
	if p := os.Getenv(EnvConfigFile); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "docrun", "config.toml")
}
