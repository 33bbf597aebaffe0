package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultListenAddr is where the plain-text session server binds.
	DefaultListenAddr = ":2222"

	// DefaultDatabasePath is the SQLite file used by the local store.
	DefaultDatabasePath = "forum.db"

	// DefaultMaxConnections caps concurrently served sessions.  Extra
	// connections are told the server is busy and closed.
	DefaultMaxConnections = 256

	// DefaultIdleTimeout disconnects a session that sends nothing for
	// this long.
	DefaultIdleTimeout = 10 * time.Minute

	// DefaultBackendTimeout bounds a single Backend Gateway call.
	DefaultBackendTimeout = 10 * time.Second

	// DefaultListLimit is how many threads "list" shows.
	DefaultListLimit = 10

	// MaxListLimit is the largest accepted list limit.
	MaxListLimit = 100

	// DefaultVerifyPolicy is the greeting check applied to new sessions.
	DefaultVerifyPolicy = VerifyKeyword

	// DefaultGracePeriod is how long shutdown waits for the HTTP API.
	DefaultGracePeriod = 5 * time.Second
)

// DefaultVerifyKeywords are the substrings the keyword policy accepts.
func DefaultVerifyKeywords() []string { return []string{"arch", "linux"} }

// Verification policies.
const (
	VerifyKeyword = "keyword" // payload must contain a keyword
	VerifyAny     = "any"     // any non-blank payload passes
)

// Log formats.
const (
	LogConsole = "console"
	LogJSON    = "json"
)

// Defaults returns a Config populated with every default value.
func Defaults() *Config {
	return &Config{
		ListenAddr:     DefaultListenAddr,
		DatabasePath:   DefaultDatabasePath,
		MaxConnections: DefaultMaxConnections,
		IdleTimeout:    DefaultIdleTimeout,
		BackendTimeout: DefaultBackendTimeout,
		ListLimit:      DefaultListLimit,
		VerifyPolicy:   DefaultVerifyPolicy,
		VerifyKeywords: DefaultVerifyKeywords(),
		LogFormat:      LogConsole,
		Verbose:        1,
	}
}
