package db

import (
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// OpenTestMetastore opens a migrated metastore in t.TempDir() and registers
// cleanup. Tests that don't need the read/write split can use Write for
// everything.
func OpenTestMetastore(t *testing.T) *Metastore {
	t.Helper()

	ms, err := OpenMetastore(filepath.Join(t.TempDir(), "meta.sqlite"), 2)
	if err != nil {
		t.Fatalf("open test metastore: %v", err)
	}
	t.Cleanup(func() {
		_ = ms.Close()
	})
	return ms
}
