// Package config loads the service settings from defaults, an optional YAML
// file and LWGEOMFIX_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	// AppName is the application name.
	AppName = "lwgeomfix"
	// EnvPrefix prefixes every environment override, e.g. LWGEOMFIX_LWGEOM_PATH.
	EnvPrefix = "LWGEOMFIX"
)

// Backends.
const (
	BackendLwgeom = "lwgeom"
	BackendGEOS   = "geos"
)

var (
	ErrConfigFile = errors.New("config: cannot read config file")
	ErrInvalid    = errors.New("config: invalid value")
)

// Config is the effective configuration.
type Config struct {
	Backend string       `mapstructure:"backend" yaml:"backend"`
	Lwgeom  LwgeomConfig `mapstructure:"lwgeom" yaml:"lwgeom"`
	Log     LogConfig    `mapstructure:"log" yaml:"log"`
	Server  ServerConfig `mapstructure:"server" yaml:"server"`
	Output  OutputConfig `mapstructure:"output" yaml:"output"`
}

type LwgeomConfig struct {
	// Path to the liblwgeom shared library. Empty means search the usual
	// install locations.
	Path string `mapstructure:"path" yaml:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type ServerConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Workers int    `mapstructure:"workers" yaml:"workers"`
}

type OutputConfig struct {
	// KeepInputType declares the output layer with the input geometry type
	// for every operation.
	KeepInputType bool `mapstructure:"keep_input_type" yaml:"keep_input_type"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendLwgeom,
		Log:     LogConfig{Level: "info", Format: "console"},
		Server:  ServerConfig{Addr: ":8080", Workers: 1},
	}
}

// New returns a viper instance carrying the defaults and the environment
// bindings. Flags can be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("lwgeom.path", d.Lwgeom.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.workers", d.Server.Workers)
	v.SetDefault("output.keep_input_type", d.Output.KeepInputType)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path into v, if set, and returns the validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigFile, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w %s: %w", ErrConfigFile, path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLwgeom, BackendGEOS:
	default:
		return fmt.Errorf("%w: backend %q (want %s or %s)", ErrInvalid, c.Backend, BackendLwgeom, BackendGEOS)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if c.Server.Workers < 0 {
		return fmt.Errorf("%w: server.workers %d", ErrInvalid, c.Server.Workers)
	}
	return nil
}

// YAML renders c the way a config file would be written.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
