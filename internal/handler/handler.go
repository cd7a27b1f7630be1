// Package handler exposes the engine's operations as a JSON HTTP API.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/customer"
	"github.com/xenking/orderflow/internal/domain/inventory"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/pricing"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/domain/report"
	"github.com/xenking/orderflow/internal/repository"
)

// Handler routes HTTP requests to the domain services and repositories.
type Handler struct {
	orders    *order.Service
	inventory *inventory.Service
	pricing   *pricing.Service

	products     product.Repository
	orderRepo    order.Repository
	inventoryLog inventory.Repository
	reports      report.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	orders *order.Service,
	inv *inventory.Service,
	prc *pricing.Service,
	products product.Repository,
	orderRepo order.Repository,
	inventoryLog inventory.Repository,
	reports report.Repository,
) *Handler {
	return &Handler{
		orders:       orders,
		inventory:    inv,
		pricing:      prc,
		products:     products,
		orderRepo:    orderRepo,
		inventoryLog: inventoryLog,
		reports:      reports,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /api/orders/{id}/total", h.GetOrderTotal)
	mux.HandleFunc("POST /api/orders/sweep", h.SweepOrders)
	mux.HandleFunc("GET /api/customers/{id}/orders", h.ListCustomerOrders)
	mux.HandleFunc("POST /api/products/{id}/stock", h.AdjustStock)
	mux.HandleFunc("GET /api/products/{id}/inventory-log", h.ListInventoryLog)
	mux.HandleFunc("POST /api/categories/{category}/prices", h.BulkUpdatePrices)
	mux.HandleFunc("GET /api/prices", h.PriceList)
	mux.HandleFunc("GET /api/reports/top-sellers", h.TopSellers)
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// mapDomainError converts domain errors to HTTP error replies. Business-rule
// rejections keep their message; everything unexpected is logged and hidden
// behind a 500.
func mapDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		iqErr  *order.InvalidQuantityError
		cnfErr *order.CustomerNotFoundError
		pnfErr *order.ProductNotFoundError
		isErr  *order.InsufficientStockError
		pfErr  *pricing.PriceFloorError
	)

	switch {
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, pricing.ErrInvalidPercent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &iqErr):
		writeError(w, http.StatusBadRequest, iqErr.Error())
	case errors.As(err, &cnfErr):
		writeError(w, http.StatusUnprocessableEntity, cnfErr.Error())
	case errors.As(err, &pnfErr):
		writeError(w, http.StatusUnprocessableEntity, pnfErr.Error())
	case errors.As(err, &isErr):
		writeError(w, http.StatusConflict, isErr.Error())
	case errors.As(err, &pfErr):
		writeError(w, http.StatusUnprocessableEntity, pfErr.Error())
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, customer.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case repository.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "store conflict, retry the request")
	default:
		zctx.From(r.Context()).Error("Unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses the {id} path segment as int64, replying 400 on garbage.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
