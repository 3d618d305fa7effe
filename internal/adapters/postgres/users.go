package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"feedbackpay/internal/domain"
	"feedbackpay/internal/ports"
)

// GetOrCreateUser inserts the wallet if new. The no-op update makes
// RETURNING yield the existing row on conflict; the stored nickname wins.
func (db *DB) GetOrCreateUser(ctx context.Context, wallet, nickname string) (domain.User, error) {
	var u domain.User
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (wallet_address, nickname)
		VALUES ($1, $2)
		ON CONFLICT (wallet_address) DO UPDATE SET wallet_address = EXCLUDED.wallet_address
		RETURNING id::text, wallet_address, nickname, created_at
	`, wallet, nickname).Scan(&u.ID, &u.WalletAddress, &u.Nickname, &u.CreatedAt)
	return u, err
}

func (db *DB) GetUserByWallet(ctx context.Context, wallet string) (domain.User, error) {
	var u domain.User
	err := db.Pool.QueryRow(ctx, `
		SELECT id::text, wallet_address, nickname, created_at FROM users WHERE wallet_address = $1
	`, wallet).Scan(&u.ID, &u.WalletAddress, &u.Nickname, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ports.ErrNotFound
	}
	return u, err
}
