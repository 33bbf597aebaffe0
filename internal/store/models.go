package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a forum account.  Accounts are created implicitly the first
// time a username writes something, so most have no password.
type User struct {
	ID           string    `gorm:"primaryKey;type:text" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null;default:''" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Category groups threads.
type Category struct {
	ID          string    `gorm:"primaryKey;type:text" json:"id"`
	Name        string    `gorm:"not null;index" json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Thread is a top-level post.
type Thread struct {
	ID         string    `gorm:"primaryKey;type:text"`
	Title      string    `gorm:"not null"`
	UserID     string    `gorm:"not null;index"`
	User       User      `gorm:"foreignKey:UserID"`
	Content    string    `gorm:"not null"`
	ImageURL   *string
	CategoryID *string   `gorm:"index"`
	CreatedAt  time.Time `gorm:"index"`
}

// Comment is a reply attached to a thread.
type Comment struct {
	ID        string `gorm:"primaryKey;type:text"`
	ThreadID  string `gorm:"not null;index"`
	Thread    Thread `gorm:"foreignKey:ThreadID"`
	UserID    string `gorm:"not null"`
	User      User   `gorm:"foreignKey:UserID"`
	Content   string `gorm:"not null"`
	ImageURL  *string
	CreatedAt time.Time `gorm:"index"`
}

func (u *User) BeforeCreate(*gorm.DB) error     { u.ID = ensureID(u.ID); return nil }
func (c *Category) BeforeCreate(*gorm.DB) error { c.ID = ensureID(c.ID); return nil }
func (t *Thread) BeforeCreate(*gorm.DB) error   { t.ID = ensureID(t.ID); return nil }
func (c *Comment) BeforeCreate(*gorm.DB) error  { c.ID = ensureID(c.ID); return nil }

func ensureID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// ThreadRow is a thread joined with its author's username.
type ThreadRow struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	ImageURL   *string   `json:"image_url"`
	CategoryID *string   `json:"category_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// CommentRow is a comment joined with its author's username.
type CommentRow struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// NewThread is the input of [Store.CreateThread].
type NewThread struct {
	Title      string  `json:"title"`
	Author     string  `json:"author"`
	Content    string  `json:"content"`
	ImageURL   *string `json:"image_url"`
	CategoryID *string `json:"category_id"`
}

// NewComment is the input of [Store.CreateComment].
type NewComment struct {
	ThreadID string  `json:"thread_id"`
	Author   string  `json:"author"`
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url"`
}
