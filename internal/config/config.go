// Package config loads server settings with precedence env > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "crudschema.yaml"

// Config is the full server configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Schemas  SchemasConfig  `mapstructure:"schemas"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Listing  ListingConfig  `mapstructure:"listing"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL              string        `mapstructure:"url"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type SchemasConfig struct {
	Dir string `mapstructure:"dir"`
	// Listen enables reloads on NOTIFY schema_changed.
	Listen  bool   `mapstructure:"listen"`
	Channel string `mapstructure:"channel"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type ListingConfig struct {
	DefaultPageSize     int  `mapstructure:"default_page_size"`
	MaxPageSize         int  `mapstructure:"max_page_size"`
	CaseSensitiveSearch bool `mapstructure:"case_sensitive_search"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("schemas.dir", "schemas")
	v.SetDefault("schemas.listen", false)
	v.SetDefault("schemas.channel", "schema_changed")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "crudschema")
	v.SetDefault("auth.token_ttl", 15*time.Minute)

	v.SetDefault("listing.default_page_size", 20)
	v.SetDefault("listing.max_page_size", 100)
	v.SetDefault("listing.case_sensitive_search", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. An explicit path must exist; without one the
// default file is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CRUDSCHEMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case path != "":
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
	default:
		if _, err := os.Stat(DefaultFile); err == nil {
			v.SetConfigFile(DefaultFile)
		}
	}
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no safe default.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.Listing.MaxPageSize <= 0 {
		errs = append(errs, errors.New("listing.max_page_size must be positive"))
	}
	if c.Listing.DefaultPageSize <= 0 || c.Listing.DefaultPageSize > c.Listing.MaxPageSize {
		errs = append(errs, errors.New("listing.default_page_size must be within 1..max_page_size"))
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, errors.New("database.max_conns must not be below min_conns"))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.HTTP.Port) }
