package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/dialog/internal/event"
	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// SaveInvite stores a pending invite keyed by its source event id. Saving
// an invite that already exists keeps the original row.
func (db *DB) SaveInvite(inv model.PendingInvite) error {
	_, err := db.Exec(`
		INSERT INTO pending_invites (source_event_id, id, sender, group_name, timestamp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_event_id) DO NOTHING`,
		string(inv.SourceEventID), inv.ID, inv.From.String(), inv.GroupName, inv.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("save invite %s: %w", inv.SourceEventID.Short(), err)
	}
	return nil
}

// LoadInvites returns pending invites, oldest first.
func (db *DB) LoadInvites() ([]model.PendingInvite, error) {
	rows, err := db.Query(`
		SELECT source_event_id, id, sender, group_name, timestamp
		FROM pending_invites ORDER BY timestamp ASC, source_event_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var invites []model.PendingInvite
	for rows.Next() {
		var (
			inv          model.PendingInvite
			source, from string
			ts           int64
		)
		if err := rows.Scan(&source, &inv.ID, &from, &inv.GroupName, &ts); err != nil {
			return nil, err
		}
		pk, err := identity.ParsePublicKey(from)
		if err != nil {
			return nil, fmt.Errorf("invite %s sender: %w", source, err)
		}
		inv.SourceEventID = event.ID(source)
		inv.From = pk
		inv.Timestamp = time.UnixMilli(ts)
		invites = append(invites, inv)
	}
	return invites, rows.Err()
}

// DeleteInvite removes an invite after it was accepted or dismissed.
func (db *DB) DeleteInvite(source event.ID) error {
	_, err := db.Exec(`DELETE FROM pending_invites WHERE source_event_id = ?`, string(source))
	return err
}

const dismissedPrefix = "invite:dismissed:"

// DismissInvite deletes an invite and remembers its source, so a welcome
// the group channel still holds is not listed again.
func (db *DB) DismissInvite(source event.ID) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM pending_invites WHERE source_event_id = ?`, string(source)); err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, '1', ?)
		ON CONFLICT(key) DO UPDATE SET updated_at = excluded.updated_at`,
		dismissedPrefix+string(source), db.now().UnixMilli()); err != nil {
		return fmt.Errorf("record dismissal: %w", err)
	}
	return tx.Commit()
}

// DismissedInvites returns the source event ids of dismissed invites.
func (db *DB) DismissedInvites() (map[event.ID]struct{}, error) {
	rows, err := db.Checkpoints(dismissedPrefix)
	if err != nil {
		return nil, err
	}
	out := make(map[event.ID]struct{}, len(rows))
	for k := range rows {
		out[event.ID(strings.TrimPrefix(k, dismissedPrefix))] = struct{}{}
	}
	return out, nil
}

// ClearInvites deletes every pending invite.
func (db *DB) ClearInvites() error {
	_, err := db.Exec(`DELETE FROM pending_invites`)
	return err
}
