package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakehabit/backend/internal/models"
)

type HabitLogRepo struct {
	pool *pgxpool.Pool
}

func NewHabitLogRepo(pool *pgxpool.Pool) *HabitLogRepo {
	return &HabitLogRepo{pool: pool}
}

// InsertUniqueTx inserts a completion log, relying on the unique index on
// (habit_id, completed_on). Returns false when a log for that day already
// exists, without error.
func (r *HabitLogRepo) InsertUniqueTx(ctx context.Context, tx pgx.Tx, l *models.HabitLog) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO habit_logs (id, habit_id, user_id, completed_on, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (habit_id, completed_on) DO NOTHING
	`, l.ID, l.HabitID, l.UserID, l.CompletedOn, l.Notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CompletedOnDay returns the ids of the user's habits that have a completion
// log for the given UTC date.
func (r *HabitLogRepo) CompletedOnDay(ctx context.Context, userID uuid.UUID, day time.Time) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT habit_id FROM habit_logs WHERE user_id = $1 AND completed_on = $2
	`, userID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		done[id] = true
	}
	return done, rows.Err()
}
