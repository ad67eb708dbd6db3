package payments

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/stakehabit/backend/internal/ledger"
	"github.com/stakehabit/backend/internal/middleware"
)

type DepositRequest struct {
	Phone  string `json:"phone"`
	Amount int64  `json:"amount"`
}

type DepositResponse struct {
	Success           bool   `json:"success"`
	Demo              bool   `json:"demo,omitempty"`
	CheckoutRequestID string `json:"checkout_request_id,omitempty"`
	Message           string `json:"message"`
}

type WithdrawRequest struct {
	Phone  string `json:"phone"`
	Amount int64  `json:"amount"`
}

type WithdrawResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

// stkCallback mirrors the envelope Daraja posts to the callback URL.
type stkCallback struct {
	Body struct {
		StkCallback struct {
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Deposit handles POST /api/v1/wallet/deposits.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	res, err := h.svc.InitiateDeposit(r.Context(), userID, req.Phone, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrDepositTooSmall), errors.Is(err, ErrInvalidPhone):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrGateway):
			h.log.Error("stk push failed", "error", err)
			writeError(w, http.StatusBadGateway, "M-Pesa is unavailable, try again shortly")
		default:
			h.log.Error("deposit failed", "error", err)
			writeError(w, http.StatusInternalServerError, "deposit failed")
		}
		return
	}
	if res.Demo {
		writeJSON(w, http.StatusOK, DepositResponse{
			Success: true,
			Demo:    true,
			Message: "Demo deposit credited to your wallet",
		})
		return
	}
	writeJSON(w, http.StatusAccepted, DepositResponse{
		Success:           true,
		CheckoutRequestID: res.CheckoutRequestID,
		Message:           "STK push sent to your phone",
	})
}

// Withdraw handles POST /api/v1/wallet/withdrawals. WithdrawGuard upstream
// already enforced the minimum and the daily cap.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	txn, err := h.svc.Withdraw(r.Context(), userID, req.Phone, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrWithdrawalTooSmall), errors.Is(err, ErrInvalidPhone):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, "insufficient balance")
		default:
			h.log.Error("withdrawal failed", "error", err)
			writeError(w, http.StatusInternalServerError, "withdrawal failed")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, WithdrawResponse{
		Success:       true,
		TransactionID: txn.ID.String(),
		Message:       "Withdrawal is on its way to your M-Pesa",
	})
}

// Callback handles POST /api/v1/payments/mpesa/callback, the webhook Daraja
// calls when the customer resolves the STK prompt. It is unauthenticated;
// settlement is keyed on the CheckoutRequestID we issued.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	var cb stkCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.log.Warn("unparseable mpesa callback", "error", err)
		writeDarajaAck(w)
		return
	}
	sc := cb.Body.StkCallback
	if sc.CheckoutRequestID == "" {
		writeDarajaAck(w)
		return
	}
	settled, err := h.svc.SettleDeposit(r.Context(), sc.CheckoutRequestID, sc.ResultCode == 0)
	if err != nil {
		// Acknowledge anyway: Daraja does not retry, the poll worker is the
		// backstop.
		h.log.Error("callback settlement failed", "error", err, "checkout_request_id", sc.CheckoutRequestID)
	} else if settled {
		h.log.Info("deposit settled via callback",
			"checkout_request_id", sc.CheckoutRequestID, "result_code", sc.ResultCode)
	}
	writeDarajaAck(w)
}

// writeDarajaAck sends the acknowledgment shape Daraja expects.
func writeDarajaAck(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{"ResultCode": 0, "ResultDesc": "Accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
