package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mobistock/mobistock/internal/platform/httpx"
)

// Handler serves read-only inventory endpoints. Catalog mutation is
// owned elsewhere; the ledger only exposes its current state.
type Handler struct {
	logger *slog.Logger
	store  *Store
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/produits", h.listUnits)
}

func (h *Handler) listUnits(w http.ResponseWriter, r *http.Request) {
	var status *UnitStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := UnitStatus(raw)
		switch s {
		case UnitStatusActive, UnitStatusSold, UnitStatusReturned:
			status = &s
		default:
			httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "unknown status filter")
			return
		}
	}
	units, err := h.store.List(r.Context(), status)
	if err != nil {
		h.logger.Error("list units", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if units == nil {
		units = []Unit{}
	}
	httpx.JSON(w, http.StatusOK, units)
}
