package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stakehabit/backend/internal/models"
)

// ErrInsufficientBalance is returned when an entry would take the wallet
// below zero. The wallet is left unchanged.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrUnknownEntryType is returned for an entry type outside the transaction
// taxonomy.
var ErrUnknownEntryType = errors.New("unknown ledger entry type")

// Entry is one requested wallet mutation. Amount is signed: debits (stake,
// withdrawal, loss) are negative, credits (deposit, reward) positive.
type Entry struct {
	UserID      uuid.UUID
	HabitID     *uuid.UUID
	Type        string
	Amount      int64
	Description string
}

// WalletRepo is the minimal wallet access the ledger needs.
type WalletRepo interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, entryType string, amount int64) (newBalance int64, err error)
}

// TransactionRepo is the minimal transaction-log access the ledger needs.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Service interface {
	// Apply runs inside the caller's transaction: balance moved by
	// Entry.Amount (rejected if the result would be negative), matching
	// aggregate counter bumped, and one immutable transaction row appended
	// carrying the running balance.
	Apply(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error)
	// ApplyNew is Apply wrapped in its own transaction.
	ApplyNew(ctx context.Context, e Entry) (*models.Transaction, error)
}

type service struct {
	pool    TxBeginner
	wallets WalletRepo
	txns    TransactionRepo
}

func NewService(pool TxBeginner, wallets WalletRepo, txns TransactionRepo) Service {
	return &service{pool: pool, wallets: wallets, txns: txns}
}

var _ Service = (*service)(nil)

var validEntryTypes = map[string]bool{
	models.TxTypeDeposit:    true,
	models.TxTypeWithdrawal: true,
	models.TxTypeStake:      true,
	models.TxTypeReward:     true,
	models.TxTypeLoss:       true,
}

func (s *service) Apply(ctx context.Context, tx pgx.Tx, e Entry) (*models.Transaction, error) {
	if !validEntryTypes[e.Type] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntryType, e.Type)
	}
	w, err := s.wallets.GetForUpdate(ctx, tx, e.UserID)
	if err != nil {
		return nil, err
	}
	if w.Balance+e.Amount < 0 {
		return nil, ErrInsufficientBalance
	}
	newBalance, err := s.wallets.ApplyDelta(ctx, tx, e.UserID, e.Type, e.Amount)
	if err != nil {
		// The conditional UPDATE is the authoritative floor check; a
		// concurrent writer can still lose the race between read and write.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	txn := &models.Transaction{
		ID:           uuid.New(),
		UserID:       e.UserID,
		HabitID:      e.HabitID,
		Type:         e.Type,
		Status:       models.TxStatusCompleted,
		Amount:       e.Amount,
		BalanceAfter: &newBalance,
		Description:  e.Description,
	}
	if err := s.txns.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) ApplyNew(ctx context.Context, e Entry) (*models.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	txn, err := s.Apply(ctx, tx, e)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}
