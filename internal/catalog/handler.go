package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockd/internal/platform/httpx"
	"github.com/odyssey-erp/stockd/internal/shared"
	"github.com/odyssey-erp/stockd/internal/stock"
)

// StockWriter appends stock entries for a product.
type StockWriter interface {
	AddEntries(ctx context.Context, productID int64, entries []stock.EntryInput) error
}

// Handler exposes product endpoints as JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	ledger   StockWriter
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service, ledger StockWriter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, ledger: ledger, validate: newValidator()}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products", h.handleList)
	r.Post("/products", h.handleCreate)
	r.Route("/products/{id}", func(r chi.Router) {
		r.Get("/", h.handleShow)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Post("/addstock", h.handleAddStock)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	opts, err := ParseListOptions(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	listings, err := h.service.List(r.Context(), opts)
	if err != nil {
		h.fail(w, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewProductViews(listings))
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	withStock, err := WithStockFlag(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	listing, err := h.service.Get(r.Context(), id, withStock)
	if err != nil {
		h.fail(w, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewProductView(listing))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewProductView(Listing{Product: p}))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewProductView(Listing{Product: p}))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SoftDelete(r.Context(), id); err != nil {
		h.fail(w, "delete product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, MessageResponse{Response: "Product was deleted"})
}

func (h *Handler) handleAddStock(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.Get(r.Context(), id, false); err != nil {
		h.fail(w, "add stock", err)
		return
	}
	var req AddStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, validationError(err))
		return
	}
	date, err := time.Parse(stock.DateLayout, req.ProductionDate)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("production_date", "must be a Y-m-d date"))
		return
	}
	entry := stock.EntryInput{OnHand: *req.OnHand, ProductionDate: &date}
	if req.Taken != nil {
		entry.Taken = *req.Taken
	}
	if err := h.ledger.AddEntries(r.Context(), id, []stock.EntryInput{entry}); err != nil {
		h.fail(w, "add stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, MessageResponse{Response: "Products stock was updated"})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid product id", httpx.ErrBadRequest)
	}
	return id, nil
}
