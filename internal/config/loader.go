package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "CHAT"

// Config captures environment driven configuration values for the chat room service.
type Config struct {
	APIBaseURL        string        `envconfig:"API_BASE_URL"`
	OrganisationToken string        `envconfig:"ORGANISATION_TOKEN"`
	Timeout           time.Duration `envconfig:"TIMEOUT" default:"30s"`
	MaxRetries        int           `envconfig:"MAX_RETRIES" default:"3"`

	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBDSN    string `envconfig:"DB_DSN" default:"file:chatrooms.db?_pragma=foreign_keys(1)"`

	RedisURL       string        `envconfig:"REDIS_URL"`
	CreateGuardTTL time.Duration `envconfig:"CREATE_GUARD_TTL" default:"30s"`

	ObjectTypesFile string `envconfig:"OBJECT_TYPES_FILE"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
}

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Load parses configuration values from the current process environment.
// Missing and invalid entries are reported together.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.APIBaseURL = strings.TrimSpace(cfg.APIBaseURL)
	cfg.OrganisationToken = strings.TrimSpace(cfg.OrganisationToken)
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required and range constrained values.
func (c Config) Validate() error {
	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if c.APIBaseURL == "" {
		missing = append(missing, env("API_BASE_URL"))
	}
	if c.OrganisationToken == "" {
		missing = append(missing, env("ORGANISATION_TOKEN"))
	}
	if c.Timeout <= 0 {
		invalid = append(invalid, env("TIMEOUT"))
	}
	if c.MaxRetries < 0 {
		invalid = append(invalid, env("MAX_RETRIES"))
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, env("HTTP_PORT"))
	}
	if c.DBDriver != DriverSQLite && c.DBDriver != DriverPostgres {
		invalid = append(invalid, env("DB_DRIVER"))
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		missing = append(missing, env("DB_DSN"))
	}
	if c.CreateGuardTTL <= 0 {
		invalid = append(invalid, env("CREATE_GUARD_TTL"))
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required environment variables: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		problems = append(problems, "invalid environment variables: "+strings.Join(invalid, ", "))
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func env(name string) string {
	return Prefix + "_" + name
}
