package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stakehabit/backend/internal/ledger"
	"github.com/stakehabit/backend/internal/models"
)

const (
	// MinDeposit is the smallest STK push Daraja accepts, in KSH.
	MinDeposit = 10
	// MinWithdrawal is the smallest B2C payout, in KSH.
	MinWithdrawal = 100
)

var (
	ErrDepositTooSmall    = fmt.Errorf("minimum deposit is KSH %d", MinDeposit)
	ErrWithdrawalTooSmall = fmt.Errorf("minimum withdrawal is KSH %d", MinWithdrawal)
)

// Gateway is the slice of the Daraja client the service needs; tests swap in
// a fake.
type Gateway interface {
	Configured() bool
	STKPush(ctx context.Context, phone string, amount int64, description string) (string, error)
	STKQuery(ctx context.Context, checkoutRequestID string) (STKStatus, error)
	B2CPay(ctx context.Context, phone string, amount int64, remarks string) error
}

// TransactionStore is the transaction access the payment flows need.
type TransactionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetPendingForUpdate(ctx context.Context, tx pgx.Tx, checkoutRequestID string) (*models.Transaction, error)
	SettleTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string, balanceAfter *int64) error
}

// WalletStore credits a settled deposit directly; the pending row already
// exists, so this bypasses the ledger's append path.
type WalletStore interface {
	ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, entryType string, amount int64) (int64, error)
}

type PhoneStore interface {
	SetMpesaPhoneTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, phone string) error
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Insert funcs are typically closures over river.Client.InsertTx, wired in
// main after the River client exists.
type (
	InsertConfirmDepositTxFunc func(ctx context.Context, tx pgx.Tx, args ConfirmDepositArgs) error
	InsertPayoutTxFunc         func(ctx context.Context, tx pgx.Tx, args PayoutArgs) error
)

// DepositResult reports how a deposit request was handled. Demo deposits are
// credited immediately; live ones stay pending until the STK push resolves.
type DepositResult struct {
	Demo              bool
	CheckoutRequestID string
	Transaction       *models.Transaction
}

type Service interface {
	InitiateDeposit(ctx context.Context, userID uuid.UUID, phone string, amount int64) (*DepositResult, error)
	// SettleDeposit resolves a pending deposit by CheckoutRequestID. It is
	// idempotent: once a deposit leaves pending, later calls are no-ops.
	SettleDeposit(ctx context.Context, checkoutRequestID string, paid bool) (bool, error)
	Withdraw(ctx context.Context, userID uuid.UUID, phone string, amount int64) (*models.Transaction, error)
}

type service struct {
	pool     TxBeginner
	txns     TransactionStore
	wallets  WalletStore
	profiles PhoneStore
	ledger   ledger.Service
	gateway  Gateway

	insertConfirmDeposit InsertConfirmDepositTxFunc
	insertPayout         InsertPayoutTxFunc
}

func NewService(
	pool TxBeginner,
	txns TransactionStore,
	wallets WalletStore,
	profiles PhoneStore,
	ledgerSvc ledger.Service,
	gateway Gateway,
	insertConfirmDeposit InsertConfirmDepositTxFunc,
	insertPayout InsertPayoutTxFunc,
) *service {
	return &service{
		pool:                 pool,
		txns:                 txns,
		wallets:              wallets,
		profiles:             profiles,
		ledger:               ledgerSvc,
		gateway:              gateway,
		insertConfirmDeposit: insertConfirmDeposit,
		insertPayout:         insertPayout,
	}
}

var _ Service = (*service)(nil)

func (s *service) InitiateDeposit(ctx context.Context, userID uuid.UUID, phone string, amount int64) (*DepositResult, error) {
	if amount < MinDeposit {
		return nil, ErrDepositTooSmall
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	if !s.gateway.Configured() {
		// No Daraja credentials: credit the wallet directly, same as the
		// original demo mode.
		txn, err := s.ledger.ApplyNew(ctx, ledger.Entry{
			UserID:      userID,
			Type:        models.TxTypeDeposit,
			Amount:      amount,
			Description: fmt.Sprintf("M-Pesa deposit (Demo) - %s", normalized),
		})
		if err != nil {
			return nil, err
		}
		return &DepositResult{Demo: true, Transaction: txn}, nil
	}

	checkoutID, err := s.gateway.STKPush(ctx, normalized, amount, "Deposit to StakeHabit wallet")
	if err != nil {
		return nil, err
	}

	// The wallet is only credited when the payment confirms; until then the
	// deposit exists as a pending transaction row.
	txn := &models.Transaction{
		ID:                uuid.New(),
		UserID:            userID,
		Type:              models.TxTypeDeposit,
		Status:            models.TxStatusPending,
		Amount:            amount,
		Description:       fmt.Sprintf("M-Pesa deposit pending - %s", normalized),
		CheckoutRequestID: &checkoutID,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.txns.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	if err := s.insertConfirmDeposit(ctx, tx, ConfirmDepositArgs{CheckoutRequestID: checkoutID}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &DepositResult{CheckoutRequestID: checkoutID, Transaction: txn}, nil
}

func (s *service) SettleDeposit(ctx context.Context, checkoutRequestID string, paid bool) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// The row lock makes concurrent settlers (callback vs. poll worker)
	// serialize; whoever loses finds no pending row and backs off.
	txn, err := s.txns.GetPendingForUpdate(ctx, tx, checkoutRequestID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if !paid {
		if err := s.txns.SettleTx(ctx, tx, txn.ID, models.TxStatusFailed, nil); err != nil {
			return false, err
		}
		return true, tx.Commit(ctx)
	}

	newBalance, err := s.wallets.ApplyDelta(ctx, tx, txn.UserID, models.TxTypeDeposit, txn.Amount)
	if err != nil {
		return false, err
	}
	if err := s.txns.SettleTx(ctx, tx, txn.ID, models.TxStatusCompleted, &newBalance); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *service) Withdraw(ctx context.Context, userID uuid.UUID, phone string, amount int64) (*models.Transaction, error) {
	if amount < MinWithdrawal {
		return nil, ErrWithdrawalTooSmall
	}
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Debit first: the payout job only exists if the money left the wallet.
	txn, err := s.ledger.Apply(ctx, tx, ledger.Entry{
		UserID:      userID,
		Type:        models.TxTypeWithdrawal,
		Amount:      -amount,
		Description: fmt.Sprintf("M-Pesa withdrawal to %s", normalized),
	})
	if err != nil {
		return nil, err
	}
	if err := s.profiles.SetMpesaPhoneTx(ctx, tx, userID, normalized); err != nil {
		return nil, err
	}
	if err := s.insertPayout(ctx, tx, PayoutArgs{
		TransactionID: txn.ID,
		Phone:         normalized,
		Amount:        amount,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return txn, nil
}
