// Package core is the orchestration layer.  It composes transports,
// the backend and capabilities into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  capability  →  session  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point between
// the CLI and the modes.
package core

import "context"

// Mode represents a complete operational mode of forumd (serve,
// connect, or seed).  Each mode owns its full lifecycle from start-up
// to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
