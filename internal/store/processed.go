package store

import (
	"fmt"

	"github.com/matheus3301/dialog/internal/event"
)

// MarkProcessed records an event id as handed to the group channel. It
// reports whether the id was new.
func (db *DB) MarkProcessed(id event.ID) (bool, error) {
	res, err := db.Exec(`INSERT OR IGNORE INTO processed_events (event_id, processed_at) VALUES (?, ?)`,
		string(id), db.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("mark processed %s: %w", id.Short(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ProcessedIDs returns every processed event id.
func (db *DB) ProcessedIDs() ([]event.ID, error) {
	rows, err := db.Query(`SELECT event_id FROM processed_events ORDER BY processed_at ASC, event_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []event.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, event.ID(id))
	}
	return ids, rows.Err()
}

// ClearProcessed forgets every processed id. Nothing in the client calls
// it during normal operation; the set only grows.
func (db *DB) ClearProcessed() error {
	_, err := db.Exec(`DELETE FROM processed_events`)
	return err
}
