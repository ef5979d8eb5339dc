package testutil

import (
	"path/filepath"
	"testing"

	"attendancehub/internal/database"
	dbconfig "attendancehub/pkg/database"
)

// NewStore opens a migrated sqlite store in a temporary directory. It is
// closed when the test ends.
func NewStore(t *testing.T) *database.Manager {
	t.Helper()

	config := dbconfig.DefaultConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	store, err := database.NewManager(config)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test store: %v", err)
	}
	return store
}
