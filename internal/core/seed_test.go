package core

import (
	"context"
	"path/filepath"
	"testing"

	"forumd/internal/store"
	"forumd/util"
)

func TestSeedMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forum.db")
	mode := &SeedMode{DatabasePath: path, Logger: util.NewLogger(0)}

	// Seeding twice replaces rather than duplicates.
	for i := 0; i < 2; i++ {
		if err := mode.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	st, err := store.Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	rows, err := st.RecentThreads(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Errorf("threads = %d, want 5", len(rows))
	}
}
