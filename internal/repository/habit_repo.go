package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakehabit/backend/internal/models"
)

type HabitRepo struct {
	pool *pgxpool.Pool
}

func NewHabitRepo(pool *pgxpool.Pool) *HabitRepo {
	return &HabitRepo{pool: pool}
}

func (r *HabitRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreateTx inserts the habit inside the given transaction, alongside the
// stake debit.
func (r *HabitRepo) CreateTx(ctx context.Context, tx pgx.Tx, h *models.Habit) error {
	return tx.QueryRow(ctx, `
		INSERT INTO habits (id, user_id, name, description, stake_amount, duration_days, start_date, end_date,
			is_active, is_completed, current_streak, best_streak)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, h.ID, h.UserID, h.Name, h.Description, h.StakeAmount, h.DurationDays, h.StartDate, h.EndDate,
		h.IsActive, h.IsCompleted, h.CurrentStreak, h.BestStreak).Scan(&h.CreatedAt, &h.UpdatedAt)
}

// GetForUpdate locks the habit row for update. Call within a transaction.
func (r *HabitRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Habit, error) {
	var h models.Habit
	err := tx.QueryRow(ctx, `
		SELECT id, user_id, name, description, stake_amount, duration_days, start_date, end_date,
			is_active, is_completed, current_streak, best_streak, created_at, updated_at
		FROM habits WHERE id = $1 FOR UPDATE
	`, id).Scan(&h.ID, &h.UserID, &h.Name, &h.Description, &h.StakeAmount, &h.DurationDays, &h.StartDate, &h.EndDate,
		&h.IsActive, &h.IsCompleted, &h.CurrentStreak, &h.BestStreak, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// UpdateProgressTx persists the streak counters and lifecycle flags.
func (r *HabitRepo) UpdateProgressTx(ctx context.Context, tx pgx.Tx, h *models.Habit) error {
	_, err := tx.Exec(ctx, `
		UPDATE habits SET current_streak = $2, best_streak = $3, is_active = $4, is_completed = $5, updated_at = now()
		WHERE id = $1
	`, h.ID, h.CurrentStreak, h.BestStreak, h.IsActive, h.IsCompleted)
	return err
}

func (r *HabitRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, "DELETE FROM habits WHERE id = $1", id)
	return err
}

func (r *HabitRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Habit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, description, stake_amount, duration_days, start_date, end_date,
			is_active, is_completed, current_streak, best_streak, created_at, updated_at
		FROM habits WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Habit
	for rows.Next() {
		var h models.Habit
		if err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.Description, &h.StakeAmount, &h.DurationDays, &h.StartDate, &h.EndDate,
			&h.IsActive, &h.IsCompleted, &h.CurrentStreak, &h.BestStreak, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}

// ListLapsedIDs returns active habits with a running streak and no completion
// log on the given day or later. Used by the lapse-check worker; day is the
// previous UTC date, so a habit completed today is not flagged.
func (r *HabitRepo) ListLapsedIDs(ctx context.Context, day time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT h.id FROM habits h
		WHERE h.is_active AND NOT h.is_completed AND h.current_streak > 0
		  AND h.start_date < $1
		  AND NOT EXISTS (
			SELECT 1 FROM habit_logs l
			WHERE l.habit_id = h.id AND l.completed_on >= $1
		  )
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
