package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/ports"
)

const feedbackColumns = `id::text, document_id::text, reviewer_wallet, content, status, gate_reason, reward_amount, COALESCE(reward_tx, ''), reward_error, created_at`

const foreignKeyViolation = "23503"

// InsertFeedback writes a terminal submission. Pending submissions are
// refused by the status check constraint.
func (db *DB) InsertFeedback(ctx context.Context, fb domain.FeedbackSubmission) error {
	var rewardTx *string
	if fb.RewardTx != "" {
		rewardTx = &fb.RewardTx
	}
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO feedback (id, document_id, reviewer_wallet, content, status, gate_reason, reward_amount, reward_tx, reward_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, fb.ID, fb.DocumentID, fb.ReviewerWallet, fb.Content, string(fb.Status), fb.GateReason,
		int64(fb.RewardAmount), rewardTx, fb.RewardError, fb.CreatedAt)
	var pgErr *pgconn.PgError
	switch {
	case isUniqueViolation(err):
		return ports.ErrDuplicate
	case errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation:
		return ports.ErrNotFound
	}
	return err
}

func (db *DB) GetFeedback(ctx context.Context, id string) (domain.FeedbackSubmission, error) {
	if !validID(id) {
		return domain.FeedbackSubmission{}, ports.ErrNotFound
	}
	fb, err := scanFeedback(db.Pool.QueryRow(ctx, `SELECT `+feedbackColumns+` FROM feedback WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FeedbackSubmission{}, ports.ErrNotFound
	}
	return fb, err
}

func (db *DB) ListFeedbackByDocument(ctx context.Context, documentID string) ([]domain.FeedbackSubmission, error) {
	if !validID(documentID) {
		return []domain.FeedbackSubmission{}, nil
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT `+feedbackColumns+`
		FROM feedback
		WHERE document_id = $1
		ORDER BY created_at DESC, id DESC
	`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.FeedbackSubmission{}
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func scanFeedback(row pgx.Row) (domain.FeedbackSubmission, error) {
	var (
		fb     domain.FeedbackSubmission
		status string
		amount int64
	)
	err := row.Scan(&fb.ID, &fb.DocumentID, &fb.ReviewerWallet, &fb.Content, &status, &fb.GateReason,
		&amount, &fb.RewardTx, &fb.RewardError, &fb.CreatedAt)
	fb.Status = domain.FeedbackStatus(status)
	fb.RewardAmount = domain.Lamports(amount)
	return fb, err
}
