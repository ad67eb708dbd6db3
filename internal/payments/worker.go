package payments

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// confirmPollInterval is how long the confirm worker sleeps between STK
// status checks. confirmDeadline bounds how long a prompt can stay open
// before the deposit is written off as failed.
const (
	confirmPollInterval = 20 * time.Second
	confirmDeadline     = 5 * time.Minute
)

// ConfirmDepositArgs polls Daraja for the outcome of one STK push.
type ConfirmDepositArgs struct {
	CheckoutRequestID string `json:"checkout_request_id"`
}

func (ConfirmDepositArgs) Kind() string { return "confirm_deposit" }

// DepositSettler is the slice of the payments service the worker needs.
type DepositSettler interface {
	SettleDeposit(ctx context.Context, checkoutRequestID string, paid bool) (bool, error)
}

type ConfirmDepositWorker struct {
	river.WorkerDefaults[ConfirmDepositArgs]
	settler DepositSettler
	gateway Gateway
	log     *slog.Logger
}

func NewConfirmDepositWorker(settler DepositSettler, gateway Gateway, log *slog.Logger) *ConfirmDepositWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ConfirmDepositWorker{settler: settler, gateway: gateway, log: log}
}

func (w *ConfirmDepositWorker) Work(ctx context.Context, job *river.Job[ConfirmDepositArgs]) error {
	id := job.Args.CheckoutRequestID

	// The phone prompt expired; stop polling and fail the deposit. The M-Pesa
	// callback can no longer flip it once settled.
	if time.Since(job.CreatedAt) > confirmDeadline {
		_, err := w.settler.SettleDeposit(ctx, id, false)
		return err
	}

	status, err := w.gateway.STKQuery(ctx, id)
	if err != nil {
		return err
	}
	switch status {
	case STKPending:
		return river.JobSnooze(confirmPollInterval)
	case STKPaid:
		settled, err := w.settler.SettleDeposit(ctx, id, true)
		if err != nil {
			return err
		}
		if settled {
			w.log.Info("deposit confirmed", "checkout_request_id", id)
		}
		return nil
	default:
		_, err := w.settler.SettleDeposit(ctx, id, false)
		return err
	}
}

// PayoutArgs dispatches one withdrawal through B2C. The wallet was already
// debited when the job was enqueued.
type PayoutArgs struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Phone         string    `json:"phone"`
	Amount        int64     `json:"amount"`
}

func (PayoutArgs) Kind() string { return "mpesa_payout" }

type PayoutWorker struct {
	river.WorkerDefaults[PayoutArgs]
	gateway Gateway
	log     *slog.Logger
}

func NewPayoutWorker(gateway Gateway, log *slog.Logger) *PayoutWorker {
	if log == nil {
		log = slog.Default()
	}
	return &PayoutWorker{gateway: gateway, log: log}
}

func (w *PayoutWorker) Work(ctx context.Context, job *river.Job[PayoutArgs]) error {
	args := job.Args
	if !w.gateway.Configured() {
		w.log.Info("payout simulated (no Daraja credentials)",
			"transaction_id", args.TransactionID, "phone", args.Phone, "amount", args.Amount)
		return nil
	}
	if err := w.gateway.B2CPay(ctx, args.Phone, args.Amount, "StakeHabit withdrawal"); err != nil {
		return err
	}
	w.log.Info("payout dispatched", "transaction_id", args.TransactionID, "amount", args.Amount)
	return nil
}
