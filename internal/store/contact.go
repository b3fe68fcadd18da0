package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matheus3301/dialog/internal/identity"
	"github.com/matheus3301/dialog/internal/model"
)

// SaveContact inserts a contact, or renames the existing contact with the
// same public key. The stored row is returned, so a rename keeps its
// original id and created_at.
func (db *DB) SaveContact(c model.Contact) (model.Contact, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = db.now()
	}
	var (
		id        string
		createdAt int64
	)
	err := db.QueryRow(`
		INSERT INTO contacts (id, public_key, display_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(public_key) DO UPDATE SET
			display_name = excluded.display_name
		RETURNING id, created_at`,
		string(c.ID), c.PublicKey.String(), c.DisplayName, c.CreatedAt.UnixMilli()).
		Scan(&id, &createdAt)
	if err != nil {
		return model.Contact{}, fmt.Errorf("save contact %s: %w", c.PublicKey.Short(), err)
	}
	c.ID = model.ContactID(id)
	c.CreatedAt = time.UnixMilli(createdAt)
	return c, nil
}

// LoadContacts returns all contacts in creation order.
func (db *DB) LoadContacts() ([]model.Contact, error) {
	rows, err := db.Query(`
		SELECT id, public_key, display_name, created_at
		FROM contacts ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// GetContact returns a contact by id, or nil if it does not exist.
func (db *DB) GetContact(id model.ContactID) (*model.Contact, error) {
	row := db.QueryRow(`
		SELECT id, public_key, display_name, created_at
		FROM contacts WHERE id = ?`, string(id))
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ClearContacts deletes every contact.
func (db *DB) ClearContacts() error {
	_, err := db.Exec(`DELETE FROM contacts`)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(s scanner) (model.Contact, error) {
	var (
		c         model.Contact
		id, pk    string
		createdAt int64
	)
	if err := s.Scan(&id, &pk, &c.DisplayName, &createdAt); err != nil {
		return c, err
	}
	key, err := identity.ParsePublicKey(pk)
	if err != nil {
		return c, fmt.Errorf("contact %s: %w", id, err)
	}
	c.ID = model.ContactID(id)
	c.PublicKey = key
	c.CreatedAt = time.UnixMilli(createdAt)
	return c, nil
}
