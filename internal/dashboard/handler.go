package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stakehabit/backend/internal/middleware"
	"github.com/stakehabit/backend/internal/models"
	"github.com/stakehabit/backend/internal/payments"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Repository slices the handler needs.

type ProfileStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) error
}

type WalletStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

type TransactionStore interface {
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Transaction, error)
}

type Handler struct {
	profiles ProfileStore
	wallets  WalletStore
	txns     TransactionStore
	log      *slog.Logger
}

func NewHandler(profiles ProfileStore, wallets WalletStore, txns TransactionStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{profiles: profiles, wallets: wallets, txns: txns, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetMe handles GET /api/v1/account/me: the profile and wallet in one shot,
// which is what the dashboard renders above the fold.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	profile, err := h.profiles.GetByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, `{"error":"profile not found"}`, http.StatusNotFound)
			return
		}
		h.log.Error("get profile failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	wallet, err := h.wallets.GetByUserID(r.Context(), userID)
	if err != nil {
		h.log.Error("get wallet failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": profile,
		"wallet":  wallet,
	})
}

// UpdateProfile handles PATCH /api/v1/profile. Only the fields present in
// the body change; a phone number is normalized before saving.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var body struct {
		Username   *string `json:"username"`
		MpesaPhone *string `json:"mpesa_phone"`
		AvatarURL  *string `json:"avatar_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.GetByUserID(r.Context(), userID)
	if err != nil {
		h.log.Error("get profile failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if body.Username != nil {
		name := strings.TrimSpace(*body.Username)
		if name == "" {
			http.Error(w, `{"error":"username cannot be blank"}`, http.StatusBadRequest)
			return
		}
		profile.Username = &name
	}
	if body.MpesaPhone != nil {
		normalized, err := payments.NormalizePhone(*body.MpesaPhone)
		if err != nil {
			http.Error(w, `{"error":"invalid M-Pesa phone number"}`, http.StatusBadRequest)
			return
		}
		profile.MpesaPhone = &normalized
	}
	if body.AvatarURL != nil {
		profile.AvatarURL = body.AvatarURL
	}
	if err := h.profiles.Update(r.Context(), profile); err != nil {
		h.log.Error("update profile failed", "error", err)
		http.Error(w, `{"error":"update failed"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListTransactions handles GET /api/v1/transactions?limit=N, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			http.Error(w, `{"error":"limit must be 1-100"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	txns, err := h.txns.ListByUserID(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}
