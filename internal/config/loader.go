// Package config loads the CLI/server configuration file and the named
// credential profiles it contains. Configuration is resolved with viper:
// defaults, then the YAML file, then CIRRUS_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Config is the root configuration document.
type Config struct {
	Server   ServerConfig       `mapstructure:"server"`
	Logging  LoggingConfig      `mapstructure:"logging"`
	Profiles map[string]Profile `mapstructure:"profiles"`
}

// ServerConfig configures the HTTP connector service.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is a zap level name: debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Format is "json" or "console".
	Format string `mapstructure:"format"`
}

// Profile is a named credential set bound to one connector.
type Profile struct {
	// Connector is the registry name the credentials belong to.
	Connector string `mapstructure:"connector"`

	// Credentials are passed verbatim to the connector factory.
	Credentials map[string]string `mapstructure:"credentials"`
}

// DefaultPath returns the conventional config file location,
// ~/.config/cirrus/config.yaml. The file is optional.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "cirrus", "config.yaml")
}

// Load reads configuration from path. An empty path uses DefaultPath; a
// missing file at the default location is not an error, an explicit path
// that does not exist is. Environment variables override file values
// (CIRRUS_SERVER_PORT overrides server.port).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetEnvPrefix("CIRRUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			// A missing file at the default location is fine; anything
			// else (explicit path, parse failure) is reported.
			if explicit || !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Profile resolves a named credential profile.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	if p.Connector == "" {
		return Profile{}, fmt.Errorf("profile %q has no connector", name)
	}
	return p, nil
}

// DatasourceCredentials converts the profile's credential map to the
// connector contract type.
func (p Profile) DatasourceCredentials() datasource.Credentials {
	creds := make(datasource.Credentials, len(p.Credentials))
	for k, v := range p.Credentials {
		creds[k] = v
	}
	return creds
}
