package store

import "fmt"

// ClearAll wipes the user-visible state of the identity: contacts,
// conversations, messages, pending invites, the outbox and sync
// checkpoints. Processed event ids and the owner binding survive, so
// events already fed to the group channel are never fed again.
func (db *DB) ClearAll() error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"messages", "outbox", "conversations", "contacts", "pending_invites"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM sync_state WHERE key <> ?`, ownerKey); err != nil {
		return fmt.Errorf("clear sync_state: %w", err)
	}
	return tx.Commit()
}
