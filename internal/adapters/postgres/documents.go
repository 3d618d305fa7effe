package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/ports"
)

const documentColumns = `id::text, owner_wallet, title, content, deposit_amount, deposit_tx, reward_slots, remaining_slots, created_at`

func (db *DB) CreateDocument(ctx context.Context, doc domain.Document) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO documents (id, owner_wallet, title, content, deposit_amount, deposit_tx, reward_slots, remaining_slots, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, doc.ID, doc.OwnerWallet, doc.Title, doc.Content, int64(doc.DepositAmount), doc.DepositTx,
		doc.RewardSlots, doc.RemainingSlots, doc.CreatedAt)
	if isUniqueViolation(err) {
		return ports.ErrDuplicate
	}
	return err
}

func (db *DB) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	if !validID(id) {
		return domain.Document{}, ports.ErrNotFound
	}
	doc, err := scanDocument(db.Pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, ports.ErrNotFound
	}
	return doc, err
}

func (db *DB) ListOpenDocuments(ctx context.Context, offset, limit int) ([]domain.Document, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE remaining_slots > 0`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE remaining_slots > 0
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	docs, err := collectDocuments(rows)
	return docs, total, err
}

func (db *DB) ListDocumentsByOwner(ctx context.Context, wallet string, offset, limit int) ([]domain.Document, int, error) {
	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM documents WHERE owner_wallet = $1`, wallet).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE owner_wallet = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, wallet, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	docs, err := collectDocuments(rows)
	return docs, total, err
}

func collectDocuments(rows pgx.Rows) ([]domain.Document, error) {
	defer rows.Close()
	docs := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row pgx.Row) (domain.Document, error) {
	var (
		doc     domain.Document
		deposit int64
	)
	err := row.Scan(&doc.ID, &doc.OwnerWallet, &doc.Title, &doc.Content, &deposit, &doc.DepositTx,
		&doc.RewardSlots, &doc.RemainingSlots, &doc.CreatedAt)
	doc.DepositAmount = domain.Lamports(deposit)
	return doc, err
}
