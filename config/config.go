// Package config defines the runtime configuration for forumd and the
// rules that keep it consistent.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	ferr "forumd/internal/errors"
	"forumd/util"
)

// Config holds every tuneable for a forumd process.
type Config struct {
	// ── Session server ───────────────────────────────────────────────
	ListenAddr     string        `yaml:"listen" envconfig:"LISTEN_ADDR"`
	MaxConnections int           `yaml:"max_connections" envconfig:"MAX_CONNECTIONS"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	VerifyPolicy   string        `yaml:"verify_policy" envconfig:"VERIFY_POLICY"`
	VerifyKeywords []string      `yaml:"verify_keywords" envconfig:"VERIFY_KEYWORDS"`
	ListLimit      int           `yaml:"list_limit" envconfig:"LIST_LIMIT"`

	// ── SSH transport ────────────────────────────────────────────────
	SSHListenAddr  string `yaml:"ssh_listen" envconfig:"SSH_LISTEN_ADDR"`
	SSHHostKeyPath string `yaml:"ssh_host_key" envconfig:"SSH_HOST_KEY"`

	// ── Backend ──────────────────────────────────────────────────────
	DatabasePath   string        `yaml:"database" envconfig:"DATABASE_PATH"`
	BackendURL     string        `yaml:"backend_url" envconfig:"BACKEND_URL"` // empty → local store
	BackendTimeout time.Duration `yaml:"backend_timeout" envconfig:"BACKEND_TIMEOUT"`
	APIListenAddr  string        `yaml:"api_listen" envconfig:"API_LISTEN_ADDR"` // empty → no HTTP API
	Seed           bool          `yaml:"seed" envconfig:"SEED"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose   int    `yaml:"verbose" envconfig:"VERBOSE"`
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// UsesRemoteBackend reports whether sessions talk to a remote HTTP API
// instead of opening the database themselves.
func (c *Config) UsesRemoteBackend() bool { return c.BackendURL != "" }

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent and
// normalises listen addresses in place.
func (c *Config) Validate() error {
	addr, err := util.NormalizeListenAddr(c.ListenAddr)
	if err != nil {
		return &ferr.ConfigError{
			Field:   "listen",
			Value:   c.ListenAddr,
			Message: err.Error(),
			Hint:    "use :2222 or host:port",
		}
	}
	c.ListenAddr = addr

	if c.SSHListenAddr != "" {
		addr, err := util.NormalizeListenAddr(c.SSHListenAddr)
		if err != nil {
			return &ferr.ConfigError{Field: "ssh-listen", Value: c.SSHListenAddr, Message: err.Error()}
		}
		if addr == c.ListenAddr {
			return &ferr.ConfigError{
				Field:   "ssh-listen",
				Value:   c.SSHListenAddr,
				Message: "collides with --listen",
				Hint:    "pick a different port for the SSH transport, e.g. :2223",
			}
		}
		c.SSHListenAddr = addr
	} else if c.SSHHostKeyPath != "" {
		return &ferr.ConfigError{
			Field:   "ssh-host-key",
			Value:   c.SSHHostKeyPath,
			Message: "has no effect without --ssh-listen",
		}
	}

	if c.APIListenAddr != "" {
		addr, err := util.NormalizeListenAddr(c.APIListenAddr)
		if err != nil {
			return &ferr.ConfigError{Field: "api-listen", Value: c.APIListenAddr, Message: err.Error()}
		}
		c.APIListenAddr = addr
		if c.BackendURL != "" {
			return &ferr.ConfigError{
				Field:   "api-listen",
				Value:   c.APIListenAddr,
				Message: "the HTTP API serves the local database and cannot be combined with --backend",
			}
		}
	}

	if c.MaxConnections < 1 {
		return &ferr.ConfigError{
			Field:   "max-conns",
			Value:   c.MaxConnections,
			Message: "must be at least 1",
			Hint:    fmt.Sprintf("the default is %d", DefaultMaxConnections),
		}
	}
	if c.IdleTimeout < 0 {
		return &ferr.ConfigError{Field: "idle-timeout", Value: c.IdleTimeout, Message: "must not be negative", Hint: "use 0 to disable"}
	}
	if c.BackendTimeout <= 0 {
		return &ferr.ConfigError{Field: "backend-timeout", Value: c.BackendTimeout, Message: "must be positive"}
	}
	if c.ListLimit < 1 || c.ListLimit > MaxListLimit {
		return &ferr.ConfigError{
			Field:   "list-limit",
			Value:   c.ListLimit,
			Message: fmt.Sprintf("out of range 1-%d", MaxListLimit),
		}
	}

	switch c.VerifyPolicy {
	case VerifyAny:
	case VerifyKeyword:
		if len(nonBlank(c.VerifyKeywords)) == 0 {
			return &ferr.ConfigError{
				Field:   "verify-keywords",
				Message: "keyword policy needs at least one keyword",
				Hint:    "e.g. --verify-keywords arch,linux or --verify any",
			}
		}
	default:
		return &ferr.ConfigError{
			Field:   "verify",
			Value:   c.VerifyPolicy,
			Message: "unknown verification policy",
			Hint:    "use keyword or any",
		}
	}

	if c.BackendURL != "" {
		u, err := url.Parse(c.BackendURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ferr.ConfigError{
				Field:   "backend",
				Value:   c.BackendURL,
				Message: "must be an http(s) URL",
				Hint:    "e.g. http://localhost:8080",
			}
		}
	} else if strings.TrimSpace(c.DatabasePath) == "" {
		return &ferr.ConfigError{
			Field:   "db",
			Message: "a database path is required when no --backend is set",
		}
	}

	switch c.LogFormat {
	case LogConsole, LogJSON:
	default:
		return &ferr.ConfigError{Field: "log-format", Value: c.LogFormat, Message: "must be console or json"}
	}

	return nil
}

// Keywords returns the configured verification keywords without blanks.
func (c *Config) Keywords() []string { return nonBlank(c.VerifyKeywords) }

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
