package invoices

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mobistock/mobistock/internal/platform/httpx"
	"github.com/mobistock/mobistock/internal/shared"
)

// Handler serves the invoice collaborator endpoints.
type Handler struct {
	logger   *slog.Logger
	store    *Store
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{
		logger:   logger,
		store:    store,
		validate: validator.New(),
	}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/factures", h.listInvoices)
	r.Get("/factures/{saleID}", h.getInvoice)
	r.Post("/factures", h.createInvoice)
}

// invoiceView decorates a mirror with shop-style formatted amounts.
type invoiceView struct {
	Invoice
	AmountDueFormatted string `json:"montant_actuel_du_formate"`
}

func present(inv Invoice) invoiceView {
	return invoiceView{Invoice: inv, AmountDueFormatted: shared.FormatAmount(inv.AmountDue)}
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]invoiceView, 0, len(list))
	for _, inv := range list {
		views = append(views, present(inv))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "sale id must be numeric")
		return
	}
	inv, err := h.store.GetBySaleID(r.Context(), saleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, present(*inv))
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inv, err := h.store.Insert(r.Context(), req)
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err), slog.Int64("sale_id", req.SaleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, present(*inv))
}
