package habits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stakehabit/backend/internal/ledger"
	"github.com/stakehabit/backend/internal/models"
)

// rewardRate: a finished habit pays the stake back plus 20%.
const rewardRateNum, rewardRateDen = 120, 100

var (
	ErrNotFound              = errors.New("habit not found")
	ErrAlreadyCompletedToday = errors.New("already completed today")
	ErrHabitFinished         = errors.New("habit is no longer active")
	ErrInvalidName           = errors.New("habit name is required")
	ErrInvalidStake          = errors.New("stake amount must be >= 0")
	ErrInvalidDuration       = errors.New("duration must be > 0 days")
)

// HabitRepo is the habit storage the tracker needs.
type HabitRepo interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, h *models.Habit) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Habit, error)
	UpdateProgressTx(ctx context.Context, tx pgx.Tx, h *models.Habit) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Habit, error)
	ListLapsedIDs(ctx context.Context, day time.Time) ([]uuid.UUID, error)
}

// LogRepo is the completion-log storage the tracker needs.
type LogRepo interface {
	InsertUniqueTx(ctx context.Context, tx pgx.Tx, l *models.HabitLog) (bool, error)
	CompletedOnDay(ctx context.Context, userID uuid.UUID, day time.Time) (map[uuid.UUID]bool, error)
}

type CreateInput struct {
	Name         string
	Description  *string
	StakeAmount  int64
	DurationDays int
}

// CompletionResult reports one daily completion. Reward is non-zero only
// when GoalReached flipped the habit to completed in this call.
type CompletionResult struct {
	Habit       *models.Habit
	GoalReached bool
	Reward      int64
}

// HabitStatus pairs a habit with today's completion flag for listing.
type HabitStatus struct {
	*models.Habit
	CompletedToday bool `json:"completed_today"`
}

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Habit, error)
	Complete(ctx context.Context, userID, habitID uuid.UUID) (*CompletionResult, error)
	Delete(ctx context.Context, userID, habitID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) ([]*HabitStatus, error)
	ResetLapsed(ctx context.Context) (int, error)
}

type service struct {
	habits HabitRepo
	logs   LogRepo
	ledger ledger.Service
	now    func() time.Time
}

// NewService creates a habit tracker. now is injectable for tests; pass nil
// for the wall clock.
func NewService(habits HabitRepo, logs LogRepo, ledgerSvc ledger.Service, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	return &service{habits: habits, logs: logs, ledger: ledgerSvc, now: now}
}

var _ Service = (*service)(nil)

// today returns the current UTC calendar date. Day boundaries are UTC
// midnights; there is no per-user timezone.
func (s *service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Create debits the stake and inserts the habit in one transaction: a failed
// debit leaves no habit, a failed insert restores the stake.
func (s *service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Habit, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if in.StakeAmount < 0 {
		return nil, ErrInvalidStake
	}
	if in.DurationDays <= 0 {
		return nil, ErrInvalidDuration
	}

	start := s.today()
	h := &models.Habit{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		Description:  in.Description,
		StakeAmount:  in.StakeAmount,
		DurationDays: in.DurationDays,
		StartDate:    start,
		EndDate:      start.AddDate(0, 0, in.DurationDays),
		IsActive:     true,
	}

	tx, err := s.habits.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.habits.CreateTx(ctx, tx, h); err != nil {
		return nil, err
	}
	if h.StakeAmount > 0 {
		_, err := s.ledger.Apply(ctx, tx, ledger.Entry{
			UserID:      userID,
			HabitID:     &h.ID,
			Type:        models.TxTypeStake,
			Amount:      -h.StakeAmount,
			Description: fmt.Sprintf("Stake for habit: %s", h.Name),
		})
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Complete records today's completion, advances the streak, and on reaching
// duration_days marks the habit done and credits the reward, all in one
// transaction.
func (s *service) Complete(ctx context.Context, userID, habitID uuid.UUID) (*CompletionResult, error) {
	day := s.today()

	tx, err := s.habits.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	h, err := s.habits.GetForUpdate(ctx, tx, habitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if h.UserID != userID {
		return nil, ErrNotFound
	}
	if !h.IsActive || h.IsCompleted {
		return nil, ErrHabitFinished
	}

	inserted, err := s.logs.InsertUniqueTx(ctx, tx, &models.HabitLog{
		ID:          uuid.New(),
		HabitID:     h.ID,
		UserID:      userID,
		CompletedOn: day,
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, ErrAlreadyCompletedToday
	}

	h.CurrentStreak++
	if h.CurrentStreak > h.BestStreak {
		h.BestStreak = h.CurrentStreak
	}

	res := &CompletionResult{Habit: h}
	if h.CurrentStreak >= h.DurationDays {
		h.IsCompleted = true
		h.IsActive = false
		res.GoalReached = true
		res.Reward = h.StakeAmount * rewardRateNum / rewardRateDen
		if res.Reward > 0 {
			_, err := s.ledger.Apply(ctx, tx, ledger.Entry{
				UserID:      userID,
				HabitID:     &h.ID,
				Type:        models.TxTypeReward,
				Amount:      res.Reward,
				Description: fmt.Sprintf("Completed habit: %s - stake returned + 20%% bonus", h.Name),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if err := s.habits.UpdateProgressTx(ctx, tx, h); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// Delete refunds the stake of an unfinished habit and removes the row in one
// transaction. A finished habit was already paid its reward, so nothing is
// refunded.
func (s *service) Delete(ctx context.Context, userID, habitID uuid.UUID) error {
	tx, err := s.habits.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	h, err := s.habits.GetForUpdate(ctx, tx, habitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if h.UserID != userID {
		return ErrNotFound
	}

	if !h.IsCompleted && h.StakeAmount > 0 {
		_, err := s.ledger.Apply(ctx, tx, ledger.Entry{
			UserID:      userID,
			HabitID:     &h.ID,
			Type:        models.TxTypeWithdrawal,
			Amount:      h.StakeAmount,
			Description: fmt.Sprintf("Refund from deleted habit: %s", h.Name),
		})
		if err != nil {
			return err
		}
	}
	if err := s.habits.DeleteTx(ctx, tx, h.ID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]*HabitStatus, error) {
	list, err := s.habits.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	done, err := s.logs.CompletedOnDay(ctx, userID, s.today())
	if err != nil {
		return nil, err
	}
	out := make([]*HabitStatus, 0, len(list))
	for _, h := range list {
		out = append(out, &HabitStatus{Habit: h, CompletedToday: done[h.ID]})
	}
	return out, nil
}

// ResetLapsed zeroes the streak of every active habit with no completion
// since yesterday and debits one day's stake share as a loss. A wallet that
// cannot cover the penalty still gets the reset, just no debit. Returns the
// number of habits reset.
func (s *service) ResetLapsed(ctx context.Context) (int, error) {
	yesterday := s.today().AddDate(0, 0, -1)
	ids, err := s.habits.ListLapsedIDs(ctx, yesterday)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, id := range ids {
		if err := s.resetOne(ctx, id); err != nil {
			return reset, fmt.Errorf("reset habit %s: %w", id, err)
		}
		reset++
	}
	return reset, nil
}

func (s *service) resetOne(ctx context.Context, habitID uuid.UUID) error {
	tx, err := s.habits.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	h, err := s.habits.GetForUpdate(ctx, tx, habitID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	if !h.IsActive || h.IsCompleted || h.CurrentStreak == 0 {
		return nil
	}

	if penalty := h.StakeAmount / int64(h.DurationDays); penalty > 0 {
		_, err := s.ledger.Apply(ctx, tx, ledger.Entry{
			UserID:      h.UserID,
			HabitID:     &h.ID,
			Type:        models.TxTypeLoss,
			Amount:      -penalty,
			Description: fmt.Sprintf("Missed a day on habit: %s", h.Name),
		})
		if err != nil && !errors.Is(err, ledger.ErrInsufficientBalance) {
			return err
		}
	}

	h.CurrentStreak = 0
	if err := s.habits.UpdateProgressTx(ctx, tx, h); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
