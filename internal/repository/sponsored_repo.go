package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakehabit/backend/internal/models"
)

type SponsoredRepo struct {
	pool *pgxpool.Pool
}

func NewSponsoredRepo(pool *pgxpool.Pool) *SponsoredRepo {
	return &SponsoredRepo{pool: pool}
}

// ListActive returns active sponsored challenges, most popular first.
func (r *SponsoredRepo) ListActive(ctx context.Context) ([]*models.SponsoredHabit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, brand_name, brand_logo, title, description, reward_amount, duration_days,
			participants_count, rating, is_active, created_at
		FROM sponsored_habits WHERE is_active ORDER BY participants_count DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.SponsoredHabit
	for rows.Next() {
		var s models.SponsoredHabit
		if err := rows.Scan(&s.ID, &s.BrandName, &s.BrandLogo, &s.Title, &s.Description, &s.RewardAmount,
			&s.DurationDays, &s.ParticipantsCount, &s.Rating, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
