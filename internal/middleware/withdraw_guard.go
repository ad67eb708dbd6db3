package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ctxWithdrawKey contextKey = "parsed_withdrawal"

const (
	// MinWithdrawal is the smallest payout M-Pesa B2C will carry, in KSH.
	MinWithdrawal = 100
	// MaxDailyWithdrawal caps what one user can pull out per UTC day, in KSH.
	MaxDailyWithdrawal = 10000
)

// parsedWithdrawal is stored in context so the handler can read the amount
// without re-parsing the body.
type parsedWithdrawal struct {
	Amount int64 `json:"amount"`
}

// WithdrawAmountFromCtx returns the amount parsed by WithdrawGuard, or 0.
func WithdrawAmountFromCtx(ctx context.Context) int64 {
	if p, ok := ctx.Value(ctxWithdrawKey).(*parsedWithdrawal); ok {
		return p.Amount
	}
	return 0
}

// WithdrawGuard validates withdrawal amount limits for the user set by
// JWTAuth. Reads the body to extract "amount", then replaces r.Body so the
// handler can re-read it.
func WithdrawGuard(pool *pgxpool.Pool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := UserIDFromCtx(r.Context())
			if userID == uuid.Nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			bodyBytes, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			// Restore body for the handler.
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))

			var peek parsedWithdrawal
			if err := json.Unmarshal(bodyBytes, &peek); err != nil {
				http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
				return
			}
			if peek.Amount < MinWithdrawal {
				http.Error(w, fmt.Sprintf(`{"error":"minimum withdrawal is KSH %d"}`, MinWithdrawal), http.StatusBadRequest)
				return
			}

			withdrawn, err := dailyWithdrawnFn(r.Context(), pool, userID)
			if err != nil {
				http.Error(w, `{"error":"failed to check daily withdrawals"}`, http.StatusInternalServerError)
				return
			}
			if withdrawn+peek.Amount > MaxDailyWithdrawal {
				http.Error(w, fmt.Sprintf(`{"error":"withdrawn %d + amount %d exceeds daily limit %d"}`, withdrawn, peek.Amount, MaxDailyWithdrawal), http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxWithdrawKey, &peek)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// dailyWithdrawnFn is the function used to compute today's withdrawn total.
// Tests can replace this to avoid hitting a real database.
var dailyWithdrawnFn = defaultDailyWithdrawn

// defaultDailyWithdrawn sums withdrawal debits for the user today (UTC).
// Habit-deletion refunds are recorded as positive withdrawals and do not
// count against the limit.
func defaultDailyWithdrawn(ctx context.Context, pool *pgxpool.Pool, userID uuid.UUID) (int64, error) {
	var total int64
	err := pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(-amount), 0)
		FROM transactions
		WHERE user_id = $1 AND type = 'withdrawal' AND amount < 0
		  AND created_at >= CURRENT_DATE
	`, userID).Scan(&total)
	return total, err
}
