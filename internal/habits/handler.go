package habits

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/stakehabit/backend/internal/ledger"
	"github.com/stakehabit/backend/internal/middleware"
)

// Request/response structs use snake_case JSON. Amounts are whole KSH.

type CreateHabitRequest struct {
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	StakeAmount  int64   `json:"stake_amount"`
	DurationDays int     `json:"duration_days"`
}

type CompleteHabitResponse struct {
	Habit       *HabitStatus `json:"habit"`
	GoalReached bool         `json:"goal_reached"`
	Reward      int64        `json:"reward,omitempty"`
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

// List handles GET /api/v1/habits.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list habits failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Create handles POST /api/v1/habits.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req CreateHabitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	habit, err := h.svc.Create(r.Context(), userID, CreateInput{
		Name:         req.Name,
		Description:  req.Description,
		StakeAmount:  req.StakeAmount,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidName), errors.Is(err, ErrInvalidStake), errors.Is(err, ErrInvalidDuration):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrInsufficientBalance):
			writeError(w, http.StatusPaymentRequired, "insufficient balance to stake this amount")
		default:
			h.log.Error("create habit failed", "error", err)
			writeError(w, http.StatusInternalServerError, "create habit failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, habit)
}

// Complete handles POST /api/v1/habits/{id}/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	habitID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}
	res, err := h.svc.Complete(r.Context(), userID, habitID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "habit not found")
		case errors.Is(err, ErrAlreadyCompletedToday):
			writeError(w, http.StatusConflict, "already completed today")
		case errors.Is(err, ErrHabitFinished):
			writeError(w, http.StatusConflict, "habit is no longer active")
		default:
			h.log.Error("complete habit failed", "error", err, "habit_id", habitID)
			writeError(w, http.StatusInternalServerError, "complete habit failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, CompleteHabitResponse{
		Habit:       &HabitStatus{Habit: res.Habit, CompletedToday: true},
		GoalReached: res.GoalReached,
		Reward:      res.Reward,
	})
}

// Delete handles DELETE /api/v1/habits/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromCtx(r.Context())
	if userID == uuid.Nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	habitID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid habit id")
		return
	}
	if err := h.svc.Delete(r.Context(), userID, habitID); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "habit not found")
			return
		}
		h.log.Error("delete habit failed", "error", err, "habit_id", habitID)
		writeError(w, http.StatusInternalServerError, "delete habit failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
