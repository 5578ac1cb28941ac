// Package db opens the SQLite metastore that holds the shared catalog and
// cluster membership, and applies its migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"
)

// Mode selects the pool shape of an opened SQLite handle.
type Mode string

// Pool modes.
const (
	// ModeWrite is a single-connection pool whose transactions take the write
	// lock up front (_txlock=immediate), so DDL statements are serialized.
	ModeWrite Mode = "write"
	// ModeRead is a multi-connection pool for lookups outside a statement.
	ModeRead Mode = "read"
)

// SQLite DSN parameters.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
	defaultReadConns   = 4
)

// OpenSQLite opens a *sql.DB pool for the given SQLite file path.
//
// Both modes set WAL journal, busy_timeout=5000ms, synchronous=NORMAL,
// and foreign_keys=on. maxOpen only applies to ModeRead (0 defaults to 4).
func OpenSQLite(path string, mode Mode, maxOpen int) (*sql.DB, error) {
	if mode != ModeRead && mode != ModeWrite {
		return nil, fmt.Errorf("invalid SQLite mode %q: must be %q or %q", mode, ModeRead, ModeWrite)
	}

	db, err := sql.Open("sqlite3", buildDSN(path, mode))
	if err != nil {
		return nil, fmt.Errorf("open sqlite (%s): %w", mode, err)
	}

	switch mode {
	case ModeWrite:
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	case ModeRead:
		if maxOpen <= 0 {
			maxOpen = defaultReadConns
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite (%s): %w", mode, err)
	}

	return db, nil
}

// Metastore bundles the write and read pools of one metastore file.
type Metastore struct {
	Write *sql.DB
	Read  *sql.DB
}

// OpenMetastore opens both pools for path and runs pending migrations on the
// write pool.
func OpenMetastore(path string, readMaxOpen int) (*Metastore, error) {
	writeDB, err := OpenSQLite(path, ModeWrite, 0)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(writeDB); err != nil {
		_ = writeDB.Close()
		return nil, err
	}

	readDB, err := OpenSQLite(path, ModeRead, readMaxOpen)
	if err != nil {
		_ = writeDB.Close()
		return nil, err
	}

	return &Metastore{Write: writeDB, Read: readDB}, nil
}

// Close closes both pools.
func (m *Metastore) Close() error {
	readErr := m.Read.Close()
	if err := m.Write.Close(); err != nil {
		return err
	}
	return readErr
}

func buildDSN(path string, mode Mode) string {
	params := url.Values{}
	params.Set("_journal_mode", defaultJournalMode)
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")

	if mode == ModeWrite {
		params.Set("_txlock", "immediate")
	}

	return path + "?" + params.Encode()
}
