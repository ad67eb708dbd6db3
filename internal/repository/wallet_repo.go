package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakehabit/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// CreateTx inserts a wallet inside the given transaction (account signup).
func (r *WalletRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, balance, total_earned, total_staked, total_lost)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, w.ID, w.UserID, w.Balance, w.TotalEarned, w.TotalStaked, w.TotalLost).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, balance, total_earned, total_staked, total_lost, created_at, updated_at
		FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalEarned, &w.TotalStaked, &w.TotalLost, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetForUpdate locks the wallet row for update. Call within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, balance, total_earned, total_staked, total_lost, created_at, updated_at
		FROM wallets WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.TotalEarned, &w.TotalStaked, &w.TotalLost, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ApplyDelta atomically moves the balance by amount (signed) and bumps the
// aggregate counter matching entryType. The WHERE clause enforces the
// non-negative balance floor: pgx.ErrNoRows means the delta was rejected and
// nothing changed.
func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, entryType string, amount int64) (newBalance int64, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE wallets
		SET balance = balance + $1,
		    total_staked = total_staked + CASE WHEN $2 = 'stake'  THEN -$1 ELSE 0 END,
		    total_earned = total_earned + CASE WHEN $2 = 'reward' THEN  $1 ELSE 0 END,
		    total_lost   = total_lost   + CASE WHEN $2 = 'loss'   THEN -$1 ELSE 0 END,
		    updated_at = now()
		WHERE user_id = $3 AND balance + $1 >= 0
		RETURNING balance
	`, amount, entryType, userID).Scan(&newBalance)
	return newBalance, err
}
