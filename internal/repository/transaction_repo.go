package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakehabit/backend/internal/models"
)

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// CreateTx appends a transaction entry inside the given transaction.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, user_id, habit_id, type, status, amount, balance_after, description, checkout_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, t.ID, t.UserID, t.HabitID, t.Type, t.Status, t.Amount, t.BalanceAfter, t.Description, t.CheckoutRequestID).Scan(&t.CreatedAt)
}

func (r *TransactionRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, habit_id, type, status, amount, balance_after, description, checkout_request_id, created_at
		FROM transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.HabitID, &t.Type, &t.Status, &t.Amount, &t.BalanceAfter, &t.Description, &t.CheckoutRequestID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// GetPendingForUpdate locks the pending deposit entry matching the gateway's
// checkout request id. pgx.ErrNoRows means it was already settled (or never
// existed), which makes settlement idempotent.
func (r *TransactionRepo) GetPendingForUpdate(ctx context.Context, tx pgx.Tx, checkoutRequestID string) (*models.Transaction, error) {
	var t models.Transaction
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, habit_id, type, status, amount, balance_after, description, checkout_request_id, created_at
		FROM transactions
		WHERE checkout_request_id = $1 AND status = 'pending'
		FOR UPDATE
	`, checkoutRequestID).Scan(&t.ID, &t.UserID, &t.HabitID, &t.Type, &t.Status, &t.Amount, &t.BalanceAfter, &t.Description, &t.CheckoutRequestID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SettleTx finalizes a pending entry: status transition plus the running
// balance recorded at settlement time.
func (r *TransactionRepo) SettleTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, balanceAfter *int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE transactions SET status = $2, balance_after = $3 WHERE id = $1
	`, id, status, balanceAfter)
	return err
}
