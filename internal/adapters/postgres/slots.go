package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"feedbackpay/internal/ports"
)

// TryConsume takes one slot in a single conditional UPDATE. Row locking in
// the server serializes concurrent callers on the same document, and the
// second of two racing for the last slot sees remaining_slots = 0 and
// matches no row.
func (db *DB) TryConsume(ctx context.Context, documentID string) (int, error) {
	if !validID(documentID) {
		return 0, ports.ErrNotFound
	}
	var remaining int
	err := db.Pool.QueryRow(ctx, `
		UPDATE documents
		SET remaining_slots = remaining_slots - 1
		WHERE id = $1 AND remaining_slots > 0
		RETURNING remaining_slots
	`, documentID).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// No row updated: the document is missing or already exhausted.
	var exists bool
	if err := db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, documentID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ports.ErrNotFound
	}
	return 0, ports.ErrNoSlotsRemaining
}

func (db *DB) RemainingSlots(ctx context.Context, documentID string) (int, error) {
	if !validID(documentID) {
		return 0, ports.ErrNotFound
	}
	var remaining int
	err := db.Pool.QueryRow(ctx, `SELECT remaining_slots FROM documents WHERE id = $1`, documentID).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ports.ErrNotFound
	}
	return remaining, err
}
