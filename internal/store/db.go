// Package store is the persistence gateway: one SQLite database per
// identity holding contacts, conversations, messages, processed event ids,
// pending invites, the outbox and sync checkpoints. Each table can be
// cleared on its own.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection for one identity's dialog.db.
type DB struct {
	*sql.DB
	now func() time.Time
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// The executor is the only writer; one connection keeps writes ordered.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, now: time.Now}, nil
}

// BindIdentity records which public key owns the database, refusing to
// open a database that belongs to someone else.
func (db *DB) BindIdentity(publicKey string) error {
	owner, ok, err := db.GetCheckpoint(ownerKey)
	if err != nil {
		return fmt.Errorf("read owner: %w", err)
	}
	if ok {
		if owner != publicKey {
			return fmt.Errorf("database belongs to %s, not %s", owner, publicKey)
		}
		return nil
	}
	return db.SetCheckpoint(ownerKey, publicKey)
}

const ownerKey = "identity.public_key"

func nullableMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullableMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64)
}

// Stats counts rows in the main tables.
type Stats struct {
	Contacts      int64
	Conversations int64
	Messages      int64
	Processed     int64
	Invites       int64
}

// Stats returns current row counts.
func (db *DB) Stats() (Stats, error) {
	var s Stats
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM contacts),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM processed_events),
			(SELECT COUNT(*) FROM pending_invites)`).
		Scan(&s.Contacts, &s.Conversations, &s.Messages, &s.Processed, &s.Invites)
	return s, err
}
