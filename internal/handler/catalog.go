package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/product"
)

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

type adjustStockResponse struct {
	Applied  bool `json:"applied"`
	OldStock int  `json:"oldStock"`
	NewStock int  `json:"newStock"`
}

// AdjustStock handles POST /api/products/{id}/stock. A delta that would
// drive stock negative is not an HTTP error: the response carries
// applied=false and the unchanged stock, so callers branch on the business
// outcome.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	adj, err := h.inventory.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, adjustStockResponse{
		Applied:  adj.Applied(),
		OldStock: adj.OldStock,
		NewStock: adj.NewStock,
	})
}

type bulkPriceRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type bulkPriceResponse struct {
	RowsAffected int `json:"rowsAffected"`
}

// BulkUpdatePrices handles POST /api/categories/{category}/prices.
func (h *Handler) BulkUpdatePrices(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")

	var req bulkPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := h.pricing.BulkUpdatePrices(r.Context(), category, req.Percent)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, bulkPriceResponse{RowsAffected: n})
}

type priceListingDTO struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
}

// PriceList handles GET /api/prices. Listings are streamed as newline
// delimited JSON in category-then-id order, one row per line, so the
// response never buffers the whole catalog.
func (h *Handler) PriceList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")

	enc := json.NewEncoder(w)
	err := h.products.PriceList(r.Context(), func(l product.PriceListing) error {
		return enc.Encode(priceListingDTO{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Category:  l.Category,
		})
	})
	if err != nil {
		// Headers are already out; all we can do is log and cut the stream.
		mapDomainError(w, r, err)
	}
}

type inventoryLogEntryDTO struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	OldStock  int       `json:"oldStock"`
	NewStock  int       `json:"newStock"`
	Reason    string    `json:"reason"`
	LoggedAt  time.Time `json:"loggedAt"`
}

// ListInventoryLog handles GET /api/products/{id}/inventory-log.
func (h *Handler) ListInventoryLog(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entries, err := h.inventoryLog.ListByProduct(r.Context(), id)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	out := make([]inventoryLogEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = inventoryLogEntryDTO{
			ID:        e.ID,
			ProductID: e.ProductID,
			OldStock:  e.OldStock,
			NewStock:  e.NewStock,
			Reason:    e.Reason,
			LoggedAt:  e.LoggedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type topSellerDTO struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name"`
	UnitsSold int64           `json:"unitsSold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// TopSellers handles GET /api/reports/top-sellers?limit=N (default 10).
func (h *Handler) TopSellers(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sellers, err := h.reports.TopSellers(r.Context(), limit)
	if err != nil {
		mapDomainError(w, r, err)
		return
	}

	out := make([]topSellerDTO, len(sellers))
	for i, s := range sellers {
		out[i] = topSellerDTO{
			ProductID: s.ProductID,
			Name:      s.Name,
			UnitsSold: s.UnitsSold,
			Revenue:   s.Revenue,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
