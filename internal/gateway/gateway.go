// Package gateway is the session server's only door to forum data.
//
// A session never touches storage directly: it asks a [Gateway], and a
// nil error means the operation succeeded.  Three implementations
// exist.  [Local] talks to the SQLite store in-process, [Client] talks
// to a remote forumd HTTP API, and [Guarded] wraps either one with a
// per-call deadline, a circuit breaker, and metrics.
package gateway

import (
	"context"
	"time"
)

// ThreadSummary is one entry of a thread listing.
type ThreadSummary struct {
	ID        string
	Title     string
	Author    string
	CreatedAt time.Time
}

// Thread is a thread with its body.
type Thread struct {
	ThreadSummary
	Content string
}

// Comment is one reply to a thread.
type Comment struct {
	ID        string
	ThreadID  string
	Author    string
	Content   string
	CreatedAt time.Time
}

// Gateway is the set of backend operations a session can perform.
// Write operations create the author account on first use.
type Gateway interface {
	// ListRecentThreads returns at most limit threads, newest first.
	ListRecentThreads(ctx context.Context, limit int) ([]ThreadSummary, error)
	// GetThread returns one thread or an error matching ErrNotFound.
	GetThread(ctx context.Context, id string) (*Thread, error)
	// CreateThread stores a new thread by author.
	CreateThread(ctx context.Context, title, content, author string) error
	// CreateComment attaches content to threadID.
	CreateComment(ctx context.Context, threadID, content, author string) error
	// ListComments returns the comments of threadID, oldest first.
	ListComments(ctx context.Context, threadID string) ([]Comment, error)
	// EnsureUser gets or creates the account named username and
	// returns its id.
	EnsureUser(ctx context.Context, username string) (string, error)
}

// Operation names used in errors, logs and metrics.
const (
	OpListThreads   = "list_threads"
	OpGetThread     = "get_thread"
	OpCreateThread  = "create_thread"
	OpCreateComment = "create_comment"
	OpListComments  = "list_comments"
	OpEnsureUser    = "ensure_user"
)
