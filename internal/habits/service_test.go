package habits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stakehabit/backend/internal/ledger"
	"github.com/stakehabit/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory mocks. Writes are staged on the fake transaction and only land
// on Commit, so rollback behavior is observable in tests.
// ---------------------------------------------------------------------------

type memTx struct {
	hooks []func()
}

func (t *memTx) stage(fn func()) { t.hooks = append(t.hooks, fn) }

func (t *memTx) Commit(context.Context) error {
	for _, fn := range t.hooks {
		fn()
	}
	t.hooks = nil
	return nil
}

func (t *memTx) Rollback(context.Context) error {
	t.hooks = nil
	return nil
}

func (t *memTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }

type mockLogRepo struct {
	mu   sync.Mutex
	logs []*models.HabitLog
}

func logKey(habitID uuid.UUID, day time.Time) string {
	return habitID.String() + "|" + day.Format("2006-01-02")
}

func (m *mockLogRepo) has(habitID uuid.UUID, day time.Time) bool {
	for _, l := range m.logs {
		if logKey(l.HabitID, l.CompletedOn) == logKey(habitID, day) {
			return true
		}
	}
	return false
}

func (m *mockLogRepo) InsertUniqueTx(_ context.Context, tx pgx.Tx, l *models.HabitLog) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.has(l.HabitID, l.CompletedOn) {
		return false, nil
	}
	cp := *l
	tx.(*memTx).stage(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.logs = append(m.logs, &cp)
	})
	return true, nil
}

func (m *mockLogRepo) CompletedOnDay(_ context.Context, userID uuid.UUID, day time.Time) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]bool)
	for _, l := range m.logs {
		if l.UserID == userID && l.CompletedOn.Equal(day) {
			out[l.HabitID] = true
		}
	}
	return out, nil
}

type mockHabitRepo struct {
	mu     sync.Mutex
	habits map[uuid.UUID]*models.Habit
	logs   *mockLogRepo
}

func newMockHabitRepo(logs *mockLogRepo) *mockHabitRepo {
	return &mockHabitRepo{habits: make(map[uuid.UUID]*models.Habit), logs: logs}
}

func (m *mockHabitRepo) Begin(context.Context) (pgx.Tx, error) { return &memTx{}, nil }

func (m *mockHabitRepo) CreateTx(_ context.Context, tx pgx.Tx, h *models.Habit) error {
	cp := *h
	tx.(*memTx).stage(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.habits[cp.ID] = &cp
	})
	return nil
}

func (m *mockHabitRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.habits[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *h
	return &cp, nil
}

func (m *mockHabitRepo) UpdateProgressTx(_ context.Context, tx pgx.Tx, h *models.Habit) error {
	cp := *h
	tx.(*memTx).stage(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.habits[cp.ID] = &cp
	})
	return nil
}

func (m *mockHabitRepo) DeleteTx(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	tx.(*memTx).stage(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.habits, id)
	})
	return nil
}

func (m *mockHabitRepo) ListByUserID(_ context.Context, userID uuid.UUID) ([]*models.Habit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Habit
	for _, h := range m.habits {
		if h.UserID == userID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockHabitRepo) ListLapsedIDs(_ context.Context, day time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uuid.UUID
	for _, h := range m.habits {
		if !h.IsActive || h.IsCompleted || h.CurrentStreak == 0 || !h.StartDate.Before(day) {
			continue
		}
		recent := false
		for _, l := range m.logs.logs {
			if l.HabitID == h.ID && !l.CompletedOn.Before(day) {
				recent = true
				break
			}
		}
		if !recent {
			out = append(out, h.ID)
		}
	}
	return out, nil
}

func (m *mockHabitRepo) get(id uuid.UUID) *models.Habit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.habits[id]; ok {
		cp := *h
		return &cp
	}
	return nil
}

// fakeLedger enforces the non-negative floor and records applied entries.

type fakeLedger struct {
	mu      sync.Mutex
	balance int64
	entries []ledger.Entry
}

func (f *fakeLedger) Apply(_ context.Context, _ pgx.Tx, e ledger.Entry) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance+e.Amount < 0 {
		return nil, ledger.ErrInsufficientBalance
	}
	f.balance += e.Amount
	f.entries = append(f.entries, e)
	after := f.balance
	return &models.Transaction{
		ID:           uuid.New(),
		UserID:       e.UserID,
		HabitID:      e.HabitID,
		Type:         e.Type,
		Status:       models.TxStatusCompleted,
		Amount:       e.Amount,
		BalanceAfter: &after,
	}, nil
}

func (f *fakeLedger) ApplyNew(ctx context.Context, e ledger.Entry) (*models.Transaction, error) {
	return f.Apply(ctx, nil, e)
}

func (f *fakeLedger) snapshot() (int64, []ledger.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledger.Entry, len(f.entries))
	copy(out, f.entries)
	return f.balance, out
}

// testClock is a settable clock for crossing day boundaries.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.AddDate(0, 0, n)
}

func newFixture(balance int64) (Service, *mockHabitRepo, *fakeLedger, *testClock) {
	logs := &mockLogRepo{}
	habits := newMockHabitRepo(logs)
	led := &fakeLedger{balance: balance}
	clock := &testClock{t: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}
	return NewService(habits, logs, led, clock.now), habits, led, clock
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreate_Validation(t *testing.T) {
	svc, _, _, _ := newFixture(1000)
	user := uuid.New()
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"blank name", CreateInput{Name: "  ", StakeAmount: 50, DurationDays: 7}, ErrInvalidName},
		{"negative stake", CreateInput{Name: "Run", StakeAmount: -1, DurationDays: 7}, ErrInvalidStake},
		{"zero duration", CreateInput{Name: "Run", StakeAmount: 50, DurationDays: 0}, ErrInvalidDuration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, user, tc.in); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreate_DebitsStake(t *testing.T) {
	svc, habits, led, _ := newFixture(1000)
	user := uuid.New()

	h, err := svc.Create(context.Background(), user, CreateInput{Name: "Morning run", StakeAmount: 50, DurationDays: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if balance, _ := led.snapshot(); balance != 950 {
		t.Errorf("balance after stake: got %d, want 950", balance)
	}
	if got := habits.get(h.ID); got == nil || !got.IsActive || got.CurrentStreak != 0 {
		t.Errorf("stored habit wrong: %+v", got)
	}
	if want := h.StartDate.AddDate(0, 0, 2); !h.EndDate.Equal(want) {
		t.Errorf("end date: got %v, want %v", h.EndDate, want)
	}
	_, entries := led.snapshot()
	if len(entries) != 1 || entries[0].Type != models.TxTypeStake || entries[0].Amount != -50 {
		t.Errorf("expected one stake entry of -50, got %+v", entries)
	}
}

func TestCreate_InsufficientBalance(t *testing.T) {
	svc, habits, led, _ := newFixture(20)
	user := uuid.New()

	_, err := svc.Create(context.Background(), user, CreateInput{Name: "Read", StakeAmount: 50, DurationDays: 7})
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got: %v", err)
	}
	if balance, _ := led.snapshot(); balance != 20 {
		t.Errorf("failed create must not move money: balance %d", balance)
	}
	habits.mu.Lock()
	n := len(habits.habits)
	habits.mu.Unlock()
	if n != 0 {
		t.Errorf("failed create must not persist a habit, found %d", n)
	}
}

// A two-day habit with a 50 stake: first completion sets streak 1, repeating
// the same day is rejected, and the second day's completion finishes the
// habit and pays 60 (stake plus 20%).
func TestCompleteLifecycle(t *testing.T) {
	svc, habits, led, clock := newFixture(1000)
	user := uuid.New()
	ctx := context.Background()

	h, err := svc.Create(ctx, user, CreateInput{Name: "Meditate", StakeAmount: 50, DurationDays: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	res, err := svc.Complete(ctx, user, h.ID)
	if err != nil {
		t.Fatalf("day 1 Complete: %v", err)
	}
	if res.Habit.CurrentStreak != 1 || res.GoalReached {
		t.Errorf("day 1: streak %d, goalReached %v", res.Habit.CurrentStreak, res.GoalReached)
	}

	if _, err := svc.Complete(ctx, user, h.ID); !errors.Is(err, ErrAlreadyCompletedToday) {
		t.Fatalf("same-day repeat: got %v, want ErrAlreadyCompletedToday", err)
	}
	if got := habits.get(h.ID).CurrentStreak; got != 1 {
		t.Errorf("rejected repeat must not advance streak: got %d", got)
	}

	clock.advanceDays(1)
	res, err = svc.Complete(ctx, user, h.ID)
	if err != nil {
		t.Fatalf("day 2 Complete: %v", err)
	}
	if !res.GoalReached || res.Reward != 60 {
		t.Errorf("day 2: goalReached %v reward %d, want true/60", res.GoalReached, res.Reward)
	}
	if got := habits.get(h.ID); !got.IsCompleted || got.IsActive || got.CurrentStreak != 2 || got.BestStreak != 2 {
		t.Errorf("finished habit wrong: %+v", got)
	}
	// 1000 - 50 stake + 60 reward
	if balance, _ := led.snapshot(); balance != 1010 {
		t.Errorf("balance after finish: got %d, want 1010", balance)
	}

	clock.advanceDays(1)
	if _, err := svc.Complete(ctx, user, h.ID); !errors.Is(err, ErrHabitFinished) {
		t.Fatalf("completing a finished habit: got %v, want ErrHabitFinished", err)
	}
}

func TestComplete_WrongUser(t *testing.T) {
	svc, _, _, _ := newFixture(1000)
	owner := uuid.New()

	h, err := svc.Create(context.Background(), owner, CreateInput{Name: "Gym", StakeAmount: 10, DurationDays: 5})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Complete(context.Background(), uuid.New(), h.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other user's habit: got %v, want ErrNotFound", err)
	}
}

func TestDelete_RefundsStake(t *testing.T) {
	svc, habits, led, _ := newFixture(1000)
	user := uuid.New()
	ctx := context.Background()

	h, err := svc.Create(ctx, user, CreateInput{Name: "Journal", StakeAmount: 200, DurationDays: 30})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, user, h.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	balance, entries := led.snapshot()
	if balance != 1000 {
		t.Errorf("create-then-delete must be net zero: balance %d", balance)
	}
	last := entries[len(entries)-1]
	if last.Type != models.TxTypeWithdrawal || last.Amount != 200 {
		t.Errorf("refund entry: got %+v, want withdrawal +200", last)
	}
	if habits.get(h.ID) != nil {
		t.Error("deleted habit still present")
	}
}

func TestDelete_CompletedHabitNoRefund(t *testing.T) {
	svc, _, led, _ := newFixture(1000)
	user := uuid.New()
	ctx := context.Background()

	h, err := svc.Create(ctx, user, CreateInput{Name: "Sprint", StakeAmount: 100, DurationDays: 1})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Complete(ctx, user, h.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	before, _ := led.snapshot()

	if err := svc.Delete(ctx, user, h.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if after, _ := led.snapshot(); after != before {
		t.Errorf("deleting a finished habit must not move money: %d -> %d", before, after)
	}
}

func TestResetLapsed(t *testing.T) {
	svc, habits, led, clock := newFixture(1000)
	user := uuid.New()
	ctx := context.Background()

	h, err := svc.Create(ctx, user, CreateInput{Name: "Stretch", StakeAmount: 100, DurationDays: 10})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Complete(ctx, user, h.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Skip a full day, then run the check the morning after.
	clock.advanceDays(2)
	reset, err := svc.ResetLapsed(ctx)
	if err != nil {
		t.Fatalf("ResetLapsed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset count: got %d, want 1", reset)
	}

	got := habits.get(h.ID)
	if got.CurrentStreak != 0 {
		t.Errorf("lapsed streak: got %d, want 0", got.CurrentStreak)
	}
	if got.BestStreak != 1 {
		t.Errorf("best streak must survive a lapse: got %d", got.BestStreak)
	}
	if got.BestStreak < got.CurrentStreak {
		t.Error("best_streak below current_streak")
	}

	// Penalty is one day's share: 100 / 10.
	balance, entries := led.snapshot()
	last := entries[len(entries)-1]
	if last.Type != models.TxTypeLoss || last.Amount != -10 {
		t.Errorf("penalty entry: got %+v, want loss -10", last)
	}
	if balance != 890 { // 1000 - 100 stake - 10 penalty
		t.Errorf("balance after lapse: got %d, want 890", balance)
	}
}

func TestResetLapsed_SkipsFreshHabits(t *testing.T) {
	svc, habits, _, clock := newFixture(1000)
	user := uuid.New()
	ctx := context.Background()

	h, err := svc.Create(ctx, user, CreateInput{Name: "New today", StakeAmount: 50, DurationDays: 5})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Complete(ctx, user, h.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Next morning: yesterday was completed, nothing lapsed.
	clock.advanceDays(1)
	reset, err := svc.ResetLapsed(ctx)
	if err != nil {
		t.Fatalf("ResetLapsed: %v", err)
	}
	if reset != 0 {
		t.Errorf("reset count: got %d, want 0", reset)
	}
	if got := habits.get(h.ID).CurrentStreak; got != 1 {
		t.Errorf("streak must survive: got %d", got)
	}
}

func TestResetLapsed_PoorWalletStillResets(t *testing.T) {
	svc, habits, led, clock := newFixture(100)
	user := uuid.New()
	ctx := context.Background()

	h, err := svc.Create(ctx, user, CreateInput{Name: "Broke", StakeAmount: 100, DurationDays: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Complete(ctx, user, h.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	clock.advanceDays(2)
	reset, err := svc.ResetLapsed(ctx)
	if err != nil {
		t.Fatalf("ResetLapsed: %v", err)
	}
	if reset != 1 {
		t.Fatalf("reset count: got %d, want 1", reset)
	}
	if got := habits.get(h.ID).CurrentStreak; got != 0 {
		t.Errorf("streak must reset even when the penalty cannot be covered: got %d", got)
	}
	// Balance was drained by the stake; the 50 penalty would overdraw.
	if balance, _ := led.snapshot(); balance != 0 {
		t.Errorf("balance: got %d, want 0", balance)
	}
}

func TestList_MarksTodaysCompletions(t *testing.T) {
	svc, _, _, _ := newFixture(1000)
	user := uuid.New()
	ctx := context.Background()

	done, err := svc.Create(ctx, user, CreateInput{Name: "Done today", StakeAmount: 10, DurationDays: 5})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	pending, err := svc.Create(ctx, user, CreateInput{Name: "Not yet", StakeAmount: 10, DurationDays: 5})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Complete(ctx, user, done.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	list, err := svc.List(ctx, user)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	flags := make(map[uuid.UUID]bool, len(list))
	for _, hs := range list {
		flags[hs.ID] = hs.CompletedToday
	}
	if !flags[done.ID] || flags[pending.ID] {
		t.Errorf("completed_today flags wrong: %v", flags)
	}
}
