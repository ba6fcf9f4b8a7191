package sales

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mobistock/mobistock/internal/platform/httpx"
)

// Handler serves the sale engine endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	cache    *Cache
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, cache *Cache) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		cache:    cache,
		validate: validator.New(),
	}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ventes", h.listSales)
	r.Get("/ventes/{saleID}", h.getSale)
	r.Post("/ventes", h.createSale)
	r.Post("/ventes/cancel-item", h.cancelItem)
	r.Post("/ventes/return-item", h.returnItem)
	r.Post("/ventes/mark-as-rendu", h.markRendu)
	r.Put("/ventes/{saleID}/update-payment", h.updatePayment)
	r.Get("/retours", h.listReturns)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	list, err := h.cache.FetchSales(r.Context(), h.service.ListSales)
	if err != nil {
		h.logger.Error("list sales", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "sale id must be numeric")
		return
	}
	sale, err := h.service.GetSale(r.Context(), saleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CreateSale(r.Context(), req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		h.logger.Error("create sale", slog.Any("error", err), slog.String("client", req.ClientName))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) cancelItem(w http.ResponseWriter, r *http.Request) {
	var req CancelItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.CancelItem(r.Context(), req); err != nil {
		h.logger.Error("cancel item", slog.Any("error", err), slog.Int64("sale_id", req.SaleID), slog.Int64("item_id", req.ItemID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Article annulé avec succès"})
}

func (h *Handler) returnItem(w http.ResponseWriter, r *http.Request) {
	var req ReturnItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.ReturnItem(r.Context(), req); err != nil {
		h.logger.Error("return item", slog.Any("error", err), slog.Int64("sale_id", req.SaleID), slog.Int64("item_id", req.ItemID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Article retourné avec succès"})
}

func (h *Handler) markRendu(w http.ResponseWriter, r *http.Request) {
	var req RenduRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.MarkRendu(r.Context(), req); err != nil {
		h.logger.Error("mark rendu", slog.Any("error", err), slog.Int64("sale_id", req.SaleID), slog.Int64("item_id", req.ItemID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "Article rendu et remis en stock"})
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	saleID, err := strconv.ParseInt(chi.URLParam(r, "saleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "sale id must be numeric")
		return
	}
	var req UpdatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sale, err := h.service.UpdatePayment(r.Context(), saleID, req)
	if err != nil {
		h.logger.Error("update payment", slog.Any("error", err), slog.Int64("sale_id", saleID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListReturns(r.Context())
	if err != nil {
		h.logger.Error("list returns", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}
