package router

import (
	"net/http"

	"github.com/stakehabit/backend/internal/auth"
	"github.com/stakehabit/backend/internal/dashboard"
	"github.com/stakehabit/backend/internal/habits"
	"github.com/stakehabit/backend/internal/payments"
	"github.com/stakehabit/backend/internal/sponsored"
)

// Middleware is a standard wrapping middleware.
type Middleware func(http.Handler) http.Handler

// New returns an http.Handler serving the API under /api/v1. requireAuth is
// the JWT middleware; withdrawGuard additionally enforces payout limits and
// runs inside requireAuth.
func New(
	authHandler *auth.Handler,
	habitsHandler *habits.Handler,
	paymentsHandler *payments.Handler,
	dashHandler *dashboard.Handler,
	sponsoredHandler *sponsored.Handler,
	requireAuth Middleware,
	withdrawGuard Middleware,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	// Public surface: signup, login, the sponsored catalog, and the webhook
	// Daraja calls back on.
	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)
	mux.HandleFunc("GET "+base+"/sponsored-habits", sponsoredHandler.List)
	mux.HandleFunc("POST "+base+"/payments/mpesa/callback", paymentsHandler.Callback)
	mux.HandleFunc("GET "+base+"/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Everything below requires a valid token.
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, requireAuth(h))
	}

	protected("GET "+base+"/habits", habitsHandler.List)
	protected("POST "+base+"/habits", habitsHandler.Create)
	protected("POST "+base+"/habits/{id}/complete", habitsHandler.Complete)
	protected("DELETE "+base+"/habits/{id}", habitsHandler.Delete)

	protected("GET "+base+"/account/me", dashHandler.GetMe)
	protected("PATCH "+base+"/profile", dashHandler.UpdateProfile)
	protected("GET "+base+"/transactions", dashHandler.ListTransactions)

	protected("POST "+base+"/wallet/deposits", paymentsHandler.Deposit)
	mux.Handle("POST "+base+"/wallet/withdrawals", requireAuth(withdrawGuard(http.HandlerFunc(paymentsHandler.Withdraw))))

	return mux
}
