package gateway

import (
	"context"

	ferr "forumd/internal/errors"
	"forumd/internal/store"
)

// Local serves the gateway from a store in the same process.
type Local struct {
	store *store.Store
}

// NewLocal wraps s.
func NewLocal(s *store.Store) *Local { return &Local{store: s} }

func (g *Local) ListRecentThreads(ctx context.Context, limit int) ([]ThreadSummary, error) {
	rows, err := g.store.RecentThreads(ctx, limit)
	if err != nil {
		return nil, ferr.WrapBackend(OpListThreads, err)
	}
	out := make([]ThreadSummary, len(rows))
	for i, r := range rows {
		out[i] = ThreadSummary{ID: r.ID, Title: r.Title, Author: r.Author, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (g *Local) GetThread(ctx context.Context, id string) (*Thread, error) {
	r, err := g.store.Thread(ctx, id)
	if err != nil {
		return nil, ferr.WrapBackend(OpGetThread, err)
	}
	return &Thread{
		ThreadSummary: ThreadSummary{ID: r.ID, Title: r.Title, Author: r.Author, CreatedAt: r.CreatedAt},
		Content:       r.Content,
	}, nil
}

func (g *Local) CreateThread(ctx context.Context, title, content, author string) error {
	_, err := g.store.CreateThread(ctx, store.NewThread{Title: title, Content: content, Author: author})
	if err != nil {
		return ferr.WrapBackend(OpCreateThread, err)
	}
	return nil
}

func (g *Local) CreateComment(ctx context.Context, threadID, content, author string) error {
	_, err := g.store.CreateComment(ctx, store.NewComment{ThreadID: threadID, Content: content, Author: author})
	if err != nil {
		return ferr.WrapBackend(OpCreateComment, err)
	}
	return nil
}

func (g *Local) ListComments(ctx context.Context, threadID string) ([]Comment, error) {
	rows, err := g.store.ListComments(ctx, threadID)
	if err != nil {
		return nil, ferr.WrapBackend(OpListComments, err)
	}
	out := make([]Comment, len(rows))
	for i, r := range rows {
		out[i] = Comment{ID: r.ID, ThreadID: r.ThreadID, Author: r.Author, Content: r.Content, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (g *Local) EnsureUser(ctx context.Context, username string) (string, error) {
	u, err := g.store.GetOrCreateUser(ctx, username)
	if err != nil {
		return "", ferr.WrapBackend(OpEnsureUser, err)
	}
	return u.ID, nil
}

var _ Gateway = (*Local)(nil)
