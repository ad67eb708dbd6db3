package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts a new account inside the caller's transaction so the
// profile, wallet, and welcome bonus land atomically with it.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, email, passwordHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id
	`, email, passwordHash).Scan(&id)
	return id, err
}

// GetByEmail returns the account id and password hash for login.
// Returns pgx.ErrNoRows when the email is unknown.
func (r *Repository) GetByEmail(ctx context.Context, email string) (uuid.UUID, string, error) {
	var id uuid.UUID
	var passwordHash string
	err := r.pool.QueryRow(ctx, `
		SELECT id, password_hash FROM accounts WHERE email = $1
	`, email).Scan(&id, &passwordHash)
	return id, passwordHash, err
}
