package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedThread struct {
	title    string
	content  string
	author   string
	comments [][2]string // author, content
}

var (
	seedUsers = []string{"arch_user", "linux_admin", "terminal_ninja", "rust_dev"}

	seedThreads = []seedThread{
		{
			title:   "Welcome to TERNIMAL!",
			content: "This is the official forum for the TERNIMAL terminal forum client. Feel free to discuss features, report bugs, or share your terminal setups!",
			author:  "arch_user",
		},
		{
			title:   "Best terminal emulators?",
			content: "What's your favorite terminal emulator? I've been using Alacritty lately but curious what others prefer.",
			author:  "linux_admin",
			comments: [][2]string{
				{"arch_user", "I'm still using gnome-terminal. It's simple and works well."},
				{"terminal_ninja", "Try Kitty! It's fast and has great GPU acceleration."},
				{"rust_dev", "WezTerm is my favorite - cross platform and highly configurable."},
			},
		},
		{
			title:   "Rust in terminal apps",
			content: "Building terminal apps with Rust is amazing! The performance and safety are unmatched. What terminal apps have you built?",
			author:  "rust_dev",
			comments: [][2]string{
				{"rust_dev", "I built a file manager in Rust! The compile times are worth it."},
				{"linux_admin", "How's the binary size compared to C?"},
			},
		},
		{
			title:   "Productivity tips",
			content: "Share your best terminal productivity tips! I'll start: tmux + vim + fzf is my holy trinity.",
			author:  "terminal_ninja",
		},
		{
			title:   "Arch vs other distros",
			content: "Why did you choose Arch Linux? Was it the AUR, the rolling release, or something else?",
			author:  "arch_user",
		},
	}
)

// SeedStats reports what [Store.Seed] inserted.
type SeedStats struct {
	Users    int
	Threads  int
	Comments int
}

// Seed replaces all users, threads and comments with the sample
// content.  Categories are kept.  Threads get increasing timestamps in
// the order above, so the last one is the newest.
func (s *Store) Seed(ctx context.Context) (SeedStats, error) {
	var stats SeedStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&Comment{}, &Thread{}, &User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("clear: %w", err)
			}
		}

		ids := make(map[string]string, len(seedUsers))
		for _, name := range seedUsers {
			u := User{Username: name, PasswordHash: "hashed_password"}
			if err := tx.Create(&u).Error; err != nil {
				return fmt.Errorf("seed user %s: %w", name, err)
			}
			ids[name] = u.ID
			stats.Users++
		}

		base := time.Now().UTC().Add(-time.Duration(len(seedThreads)) * time.Minute)
		for i, st := range seedThreads {
			at := base.Add(time.Duration(i) * time.Minute)
			t := Thread{Title: st.title, Content: st.content, UserID: ids[st.author], CreatedAt: at}
			if err := tx.Omit(clause.Associations).Create(&t).Error; err != nil {
				return fmt.Errorf("seed thread %q: %w", st.title, err)
			}
			stats.Threads++

			for j, c := range st.comments {
				cm := Comment{
					ThreadID:  t.ID,
					UserID:    ids[c[0]],
					Content:   c[1],
					CreatedAt: at.Add(time.Duration(j+1) * time.Second),
				}
				if err := tx.Omit(clause.Associations).Create(&cm).Error; err != nil {
					return fmt.Errorf("seed comment: %w", err)
				}
				stats.Comments++
			}
		}
		return nil
	})
	if err != nil {
		return SeedStats{}, err
	}
	s.logger.Info("seeded %d users, %d threads, %d comments", stats.Users, stats.Threads, stats.Comments)
	return stats, nil
}
