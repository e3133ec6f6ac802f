package chatclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single remote call when Config.Timeout is zero.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the connection-level retry budget when Config.MaxRetries is zero.
	DefaultMaxRetries = 3
	// NoRetries disables connection-level retries.
	NoRetries = -1
)

// Config describes how a Client reaches the remote chat service.
type Config struct {
	// BaseURL is the root of the remote API, e.g. "https://chat.example.com/api".
	BaseURL string

	// OrganisationToken is sent as a bearer token on every request.
	OrganisationToken string

	// Timeout bounds each call including retries. Defaults to DefaultTimeout.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts made when a
	// connection cannot be established. HTTP error statuses are never
	// retried. Zero means DefaultMaxRetries; use NoRetries for a single
	// attempt.
	MaxRetries int

	// HTTPClient supplies the underlying transport. Its Transport is
	// wrapped with the retry layer; the client itself is not mutated.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) normalize() (Config, error) {
	var problems []string

	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		problems = append(problems, "base URL is required")
	} else {
		parsed, err := url.Parse(base)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("base URL is invalid: %v", err))
		case parsed.Scheme != "http" && parsed.Scheme != "https":
			problems = append(problems, fmt.Sprintf("base URL must use http or https (got %q)", parsed.Scheme))
		case parsed.Host == "":
			problems = append(problems, "base URL must include a host")
		}
	}
	c.BaseURL = base

	c.OrganisationToken = strings.TrimSpace(c.OrganisationToken)
	if c.OrganisationToken == "" {
		problems = append(problems, "organisation token is required")
	}

	switch {
	case c.Timeout < 0:
		problems = append(problems, "timeout must not be negative")
	case c.Timeout == 0:
		c.Timeout = DefaultTimeout
	}

	switch {
	case c.MaxRetries == NoRetries:
		c.MaxRetries = 0
	case c.MaxRetries < 0:
		problems = append(problems, "max retries must not be negative other than NoRetries")
	case c.MaxRetries == 0:
		c.MaxRetries = DefaultMaxRetries
	}

	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	if len(problems) > 0 {
		return Config{}, fmt.Errorf("chatclient: invalid config: %w", errors.New(strings.Join(problems, "; ")))
	}
	return c, nil
}
