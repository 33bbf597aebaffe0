// Package store persists the forum in SQLite through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	ferr "forumd/internal/errors"
	"forumd/util"
)

// ErrUsernameTaken is returned by [Store.RegisterUser].
var ErrUsernameTaken = errors.New("username already taken")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is the forum database.  It is safe for concurrent use.
type Store struct {
	db     *gorm.DB
	logger *util.Logger
}

// gormWriter routes gorm's own warnings (slow queries, driver errors)
// into the process logger.
type gormWriter struct{ l *util.Logger }

func (w gormWriter) Printf(format string, args ...interface{}) { w.l.Warn(format, args...) }

// Open opens or creates the database at path and migrates the schema.
func Open(path string, logger *util.Logger) (*Store, error) {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.New(gormWriter{logger}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if path == MemoryPath {
		// Every new connection to :memory: is a different database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	if err := db.AutoMigrate(&User{}, &Category{}, &Thread{}, &Comment{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	logger.Verbose("database ready at %s", path)
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ── Users ────────────────────────────────────────────────────────────

// GetOrCreateUser returns the user named username, creating it when
// absent.  Concurrent calls for the same name yield the same row.
func (s *Store) GetOrCreateUser(ctx context.Context, username string) (*User, error) {
	return getOrCreateUser(s.db.WithContext(ctx), username)
}

func getOrCreateUser(tx *gorm.DB, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	u := User{Username: username}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Create(&u).Error
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	var got User
	if err := tx.Where("username = ?", username).First(&got).Error; err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &got, nil
}

// UsernameExists reports whether an account named username exists.
func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&n).Error
	return n > 0, err
}

// RegisterUser creates an account explicitly.  Unlike
// [Store.GetOrCreateUser] it fails when the name is taken.
func (s *Store) RegisterUser(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}
	var u *User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrUsernameTaken
		}
		u = &User{Username: username}
		return tx.Create(u).Error
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ── Threads ──────────────────────────────────────────────────────────

func (s *Store) threadQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("threads AS t").
		Select("t.id, t.title, u.username AS author, t.content, t.image_url, t.category_id, t.created_at").
		Joins("JOIN users AS u ON u.id = t.user_id")
}

// RecentThreads returns up to limit threads, newest first.  A limit
// of zero or less returns all of them.
func (s *Store) RecentThreads(ctx context.Context, limit int) ([]ThreadRow, error) {
	q := s.threadQuery(ctx).Order("t.created_at DESC").Order("t.rowid DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows := []ThreadRow{}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return rows, nil
}

// Thread returns one thread or an error matching [ferr.ErrNotFound].
func (s *Store) Thread(ctx context.Context, id string) (*ThreadRow, error) {
	var rows []ThreadRow
	if err := s.threadQuery(ctx).Where("t.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("thread %s: %w", id, ferr.ErrNotFound)
	}
	return &rows[0], nil
}

// CreateThread stores a thread, creating its author on first use.
func (s *Store) CreateThread(ctx context.Context, in NewThread) (*Thread, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.New("title is required")
	}
	var t *Thread
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := getOrCreateUser(tx, in.Author)
		if err != nil {
			return err
		}
		if in.CategoryID != nil && *in.CategoryID != "" {
			var n int64
			if err := tx.Model(&Category{}).Where("id = ?", *in.CategoryID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("category %s: %w", *in.CategoryID, ferr.ErrNotFound)
			}
		}
		t = &Thread{
			Title:      in.Title,
			UserID:     u.ID,
			Content:    in.Content,
			ImageURL:   in.ImageURL,
			CategoryID: in.CategoryID,
		}
		return tx.Omit(clause.Associations).Create(t).Error
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ── Comments ─────────────────────────────────────────────────────────

// CreateComment attaches a comment to an existing thread, creating
// its author on first use.
func (s *Store) CreateComment(ctx context.Context, in NewComment) (*Comment, error) {
	var c *Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := threadExists(tx, in.ThreadID); err != nil {
			return err
		}
		u, err := getOrCreateUser(tx, in.Author)
		if err != nil {
			return err
		}
		c = &Comment{
			ThreadID: in.ThreadID,
			UserID:   u.ID,
			Content:  in.Content,
			ImageURL: in.ImageURL,
		}
		return tx.Omit(clause.Associations).Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns the comments of a thread, oldest first.
func (s *Store) ListComments(ctx context.Context, threadID string) ([]CommentRow, error) {
	db := s.db.WithContext(ctx)
	if err := threadExists(db, threadID); err != nil {
		return nil, err
	}
	rows := []CommentRow{}
	err := db.Table("comments AS c").
		Select("c.id, c.thread_id, u.username AS author, c.content, c.image_url, c.created_at").
		Joins("JOIN users AS u ON u.id = c.user_id").
		Where("c.thread_id = ?", threadID).
		Order("c.created_at ASC").Order("c.rowid ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return rows, nil
}

func threadExists(tx *gorm.DB, id string) error {
	var n int64
	if err := tx.Model(&Thread{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("thread %s: %w", id, ferr.ErrNotFound)
	}
	return nil
}

// ── Categories ───────────────────────────────────────────────────────

// ListCategories returns every category ordered by name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	cats := []Category{}
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// CreateCategory stores a category.  An empty name becomes "General".
func (s *Store) CreateCategory(ctx context.Context, name string, description *string) (*Category, error) {
	if strings.TrimSpace(name) == "" {
		name = "General"
	}
	c := &Category{Name: name, Description: description}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}
