package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferr "forumd/internal/errors"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateUser_Idempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a, err := s.GetOrCreateUser(ctx, "alice")
	require.NoError(t, err)
	b, err := s.GetOrCreateUser(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEmpty(t, a.ID)

	exists, err := s.UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestGetOrCreateUser_Concurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := s.GetOrCreateUser(ctx, "bob")
			if assert.NoError(t, err) {
				ids[i] = u.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var n int64
	require.NoError(t, s.db.Model(&User{}).Where("username = ?", "bob").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestGetOrCreateUser_RejectsBlank(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.GetOrCreateUser(context.Background(), "   ")
	assert.Error(t, err)
}

func TestRegisterUser(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	u, err := s.RegisterUser(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Username)

	_, err = s.RegisterUser(ctx, "carol")
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestThreads_NewestFirstWithLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.CreateThread(ctx, NewThread{Title: title, Author: "alice", Content: "body of " + title})
		require.NoError(t, err)
	}

	rows, err := s.RecentThreads(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "third", rows[0].Title)
	assert.Equal(t, "second", rows[1].Title)
	assert.Equal(t, "alice", rows[0].Author)

	all, err := s.RecentThreads(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	one, err := s.Thread(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "body of third", one.Content)
}

func TestThreads_EmptyListIsNotNil(t *testing.T) {
	s := setupTestStore(t)
	rows, err := s.RecentThreads(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestThread_NotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Thread(context.Background(), "nope")
	assert.ErrorIs(t, err, ferr.ErrNotFound)
}

func TestCreateThread_CreatesAuthorOnce(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateThread(ctx, NewThread{Title: "a", Author: "dave", Content: "x"})
	require.NoError(t, err)
	_, err = s.CreateThread(ctx, NewThread{Title: "b", Author: "dave", Content: "y"})
	require.NoError(t, err)

	var n int64
	require.NoError(t, s.db.Model(&User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestCreateThread_UnknownCategory(t *testing.T) {
	s := setupTestStore(t)
	cat := "missing"
	_, err := s.CreateThread(context.Background(), NewThread{Title: "a", Author: "x", CategoryID: &cat})
	assert.ErrorIs(t, err, ferr.ErrNotFound)
}

func TestComments(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	th, err := s.CreateThread(ctx, NewThread{Title: "t", Author: "alice", Content: "c"})
	require.NoError(t, err)

	_, err = s.CreateComment(ctx, NewComment{ThreadID: th.ID, Author: "bob", Content: "line1\nline2"})
	require.NoError(t, err)
	_, err = s.CreateComment(ctx, NewComment{ThreadID: th.ID, Author: "alice", Content: "thanks"})
	require.NoError(t, err)

	rows, err := s.ListComments(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0].Author)
	assert.Equal(t, "line1\nline2", rows[0].Content)
	assert.Equal(t, th.ID, rows[0].ThreadID)
	assert.Equal(t, "thanks", rows[1].Content)
}

func TestCreateComment_UnknownThread(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateComment(ctx, NewComment{ThreadID: "nope", Author: "bob", Content: "hi"})
	assert.ErrorIs(t, err, ferr.ErrNotFound)

	exists, err := s.UsernameExists(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, exists, "a failed comment must not leave its author behind")

	_, err = s.ListComments(ctx, "nope")
	assert.ErrorIs(t, err, ferr.ErrNotFound)
}

func TestCategories(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	desc := "kernel talk"
	_, err := s.CreateCategory(ctx, "Linux", &desc)
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, "", nil)
	require.NoError(t, err)

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "General", cats[0].Name)
	assert.Equal(t, "Linux", cats[1].Name)
	assert.Equal(t, "kernel talk", *cats[1].Description)
}

func TestSeed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.CreateThread(ctx, NewThread{Title: "old", Author: "stale", Content: "x"})
	require.NoError(t, err)

	stats, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, SeedStats{Users: 4, Threads: 5, Comments: 5}, stats)

	rows, err := s.RecentThreads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "Arch vs other distros", rows[0].Title)
	assert.Equal(t, "Welcome to TERNIMAL!", rows[4].Title)

	exists, err := s.UsernameExists(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, exists)

	// Seeding twice leaves the same content.
	_, err = s.Seed(ctx)
	require.NoError(t, err)
	rows, err = s.RecentThreads(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}
