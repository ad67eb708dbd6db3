package sponsored

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/stakehabit/backend/internal/models"
)

// Lister is the slice of the sponsored-habits repository the handler needs.
type Lister interface {
	ListActive(ctx context.Context) ([]*models.SponsoredHabit, error)
}

type Handler struct {
	repo Lister
	log  *slog.Logger
}

func NewHandler(repo Lister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, log: log}
}

// List handles GET /api/v1/sponsored-habits. The catalog is public; joining
// a challenge goes through the normal habit-creation flow.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListActive(r.Context())
	if err != nil {
		h.log.Error("list sponsored habits failed", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.SponsoredHabit{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(list)
}
