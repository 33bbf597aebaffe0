package core

import (
	"context"
	"fmt"

	"forumd/internal/store"
	"forumd/util"
)

// SeedMode resets a database to the sample forum content.
type SeedMode struct {
	DatabasePath string
	Logger       *util.Logger
}

// Run opens the database, seeds it and closes it again.
func (m *SeedMode) Run(ctx context.Context) error {
	st, err := store.Open(m.DatabasePath, m.Logger)
	if err != nil {
		return fmt.Errorf("open %s: %w", m.DatabasePath, err)
	}
	defer st.Close()

	stats, err := st.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed %s: %w", m.DatabasePath, err)
	}
	m.Logger.Info("seeded %s: %d users, %d threads, %d comments",
		m.DatabasePath, stats.Users, stats.Threads, stats.Comments)
	return nil
}
