package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kuitang/inkpad/internal/persist"
)

// ErrDigestMismatch is returned when a stored value no longer matches its digest.
var ErrDigestMismatch = errors.New("db: stored value does not match its digest")

// Slot is a named row in kv_store. It implements persist.Slot.
type Slot struct {
	db   *DB
	name string
	now  func() time.Time
}

// Slot returns the slot stored under name.
func (d *DB) Slot(name string) *Slot {
	return &Slot{db: d, name: name, now: time.Now}
}

// Load returns the stored value, or persist.ErrSlotEmpty.
func (s *Slot) Load(ctx context.Context) ([]byte, error) {
	var (
		value []byte
		valid bool
	)
	err := s.db.db.QueryRowContext(ctx,
		`SELECT value, digest = sha3(value, 256) FROM kv_store WHERE name = ?`, s.name,
	).Scan(&value, &valid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persist.ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %q: %w", s.name, err)
	}
	if !valid {
		return nil, fmt.Errorf("load slot %q: %w", s.name, ErrDigestMismatch)
	}
	return value, nil
}

// Save upserts the value. Writing a value identical to the stored one leaves
// the row and its timestamp untouched.
func (s *Slot) Save(ctx context.Context, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.db.ExecContext(ctx, `
INSERT INTO kv_store (name, value, digest, updated_at)
VALUES (?, ?, sha3(?, 256), ?)
ON CONFLICT(name) DO UPDATE SET
    value = excluded.value,
    digest = excluded.digest,
    updated_at = excluded.updated_at
WHERE kv_store.digest != excluded.digest`,
		s.name, data, data, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save slot %q: %w", s.name, err)
	}
	return nil
}

// UpdatedAt returns when the slot last changed.
func (s *Slot) UpdatedAt(ctx context.Context) (time.Time, error) {
	var ms int64
	err := s.db.db.QueryRowContext(ctx, `SELECT updated_at FROM kv_store WHERE name = ?`, s.name).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, persist.ErrSlotEmpty
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("slot %q timestamp: %w", s.name, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
