package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakehabit/backend/internal/models"
)

type ProfileRepo struct {
	pool *pgxpool.Pool
}

func NewProfileRepo(pool *pgxpool.Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// CreateTx inserts a profile inside the given transaction (account signup).
func (r *ProfileRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error {
	return tx.QueryRow(ctx, `
		INSERT INTO profiles (id, user_id, username, mpesa_phone, avatar_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.UserID, p.Username, p.MpesaPhone, p.AvatarURL).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, username, mpesa_phone, avatar_url, created_at, updated_at
		FROM profiles WHERE user_id = $1
	`, userID).Scan(&p.ID, &p.UserID, &p.Username, &p.MpesaPhone, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepo) Update(ctx context.Context, p *models.Profile) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles SET username = $2, mpesa_phone = $3, avatar_url = $4, updated_at = now()
		WHERE user_id = $1
	`, p.UserID, p.Username, p.MpesaPhone, p.AvatarURL)
	return err
}

// SetMpesaPhoneTx saves the withdrawal destination inside the withdrawal
// transaction so a re-used number survives even if the payout worker lags.
func (r *ProfileRepo) SetMpesaPhoneTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, phone string) error {
	_, err := tx.Exec(ctx, `
		UPDATE profiles SET mpesa_phone = $2, updated_at = now() WHERE user_id = $1
	`, userID, phone)
	return err
}
