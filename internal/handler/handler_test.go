package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderflow/internal/domain/inventory"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/pricing"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/domain/report"
)

// --- Fakes backing the domain services ---

type fakeOrderTx struct {
	customers map[int64]bool
	products  map[int64]product.Product

	orderID    int64
	insertedID int64
	items      []order.Item
	decrements map[int64]int
}

func (f *fakeOrderTx) CustomerExists(_ context.Context, id int64) (bool, error) {
	return f.customers[id], nil
}

func (f *fakeOrderTx) LockProducts(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeOrderTx) InsertOrder(_ context.Context, _ int64, _ decimal.Decimal) (int64, error) {
	f.insertedID = f.orderID
	return f.orderID, nil
}

func (f *fakeOrderTx) InsertItems(_ context.Context, _ int64, items []order.Item) error {
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeOrderTx) DecrementStock(_ context.Context, productID int64, quantity int) error {
	if f.decrements == nil {
		f.decrements = make(map[int64]int)
	}
	f.decrements[productID] += quantity
	return nil
}

func (f *fakeOrderTx) AppendInventoryLog(_ context.Context, _ inventory.LogEntry) error {
	return nil
}

type fakeOrderStore struct{ tx *fakeOrderTx }

func (f *fakeOrderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return fn(ctx, f.tx)
}

type fakeOrderRepo struct {
	orders  map[int64]*order.Order
	sums    map[int64]decimal.Decimal
	pending []int64
	marked  []int64
}

func (f *fakeOrderRepo) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) ListByCustomer(_ context.Context, customerID int64) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.orders {
		if o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) SumItems(_ context.Context, orderID int64) (decimal.Decimal, error) {
	return f.sums[orderID], nil
}

func (f *fakeOrderRepo) PendingIDs(_ context.Context) ([]int64, error) {
	return f.pending, nil
}

func (f *fakeOrderRepo) MarkProcessed(_ context.Context, orderID int64) error {
	f.marked = append(f.marked, orderID)
	return nil
}

type fakeInventoryTx struct {
	stock map[int64]int
	logs  []inventory.LogEntry
}

func (f *fakeInventoryTx) GetStockForUpdate(_ context.Context, productID int64) (int, error) {
	s, ok := f.stock[productID]
	if !ok {
		return 0, product.ErrNotFound
	}
	return s, nil
}

func (f *fakeInventoryTx) SetStock(_ context.Context, productID int64, stock int) error {
	f.stock[productID] = stock
	return nil
}

func (f *fakeInventoryTx) AppendLog(_ context.Context, e inventory.LogEntry) error {
	f.logs = append(f.logs, e)
	return nil
}

type fakeInventoryStore struct{ tx *fakeInventoryTx }

func (f *fakeInventoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	return fn(ctx, f.tx)
}

type fakePricingTx struct {
	byCategory map[string][]product.Product
	applied    []pricing.PriceUpdate
}

func (f *fakePricingTx) LockProductsByCategory(_ context.Context, category string) ([]product.Product, error) {
	return f.byCategory[category], nil
}

func (f *fakePricingTx) UpdatePrices(_ context.Context, updates []pricing.PriceUpdate) error {
	f.applied = append(f.applied, updates...)
	return nil
}

type fakePricingStore struct{ tx *fakePricingTx }

func (f *fakePricingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx pricing.Tx) error) error {
	return fn(ctx, f.tx)
}

type fakeProductRepo struct {
	products map[int64]product.Product
	listings []product.PriceListing
}

func (f *fakeProductRepo) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (f *fakeProductRepo) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) ListByCategory(_ context.Context, category string) ([]product.Product, error) {
	var out []product.Product
	for _, p := range f.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeProductRepo) PriceList(_ context.Context, fn func(product.PriceListing) error) error {
	for _, l := range f.listings {
		if err := fn(l); err != nil {
			return err
		}
	}
	return nil
}

type fakeInventoryRepo struct {
	entries map[int64][]inventory.LogEntry
}

func (f *fakeInventoryRepo) ListByProduct(_ context.Context, productID int64) ([]inventory.LogEntry, error) {
	return f.entries[productID], nil
}

type fakeReportRepo struct {
	rows []report.TopSeller
}

func (f *fakeReportRepo) TopSellers(_ context.Context, limit int) ([]report.TopSeller, error) {
	if limit < len(f.rows) {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

// --- Harness ---

type harness struct {
	mux *http.ServeMux

	orderTx   *fakeOrderTx
	orderRepo *fakeOrderRepo
	invTx     *fakeInventoryTx
	priceTx   *fakePricingTx
	products  *fakeProductRepo
	invRepo   *fakeInventoryRepo
	reports   *fakeReportRepo
}

func newHarness() *harness {
	h := &harness{
		orderTx: &fakeOrderTx{
			orderID:   42,
			customers: map[int64]bool{1: true},
			products: map[int64]product.Product{
				10: {ID: 10, Name: "Laptop", Price: decimal.RequireFromString("999.99"), Stock: 50, Category: "Electronics"},
				20: {ID: 20, Name: "Mouse", Price: decimal.RequireFromString("29.99"), Stock: 100, Category: "Electronics"},
			},
		},
		orderRepo: &fakeOrderRepo{
			orders: map[int64]*order.Order{},
			sums:   map[int64]decimal.Decimal{},
		},
		invTx:    &fakeInventoryTx{stock: map[int64]int{10: 55}},
		priceTx:  &fakePricingTx{byCategory: map[string][]product.Product{}},
		products: &fakeProductRepo{products: map[int64]product.Product{}},
		invRepo:  &fakeInventoryRepo{entries: map[int64][]inventory.LogEntry{}},
		reports:  &fakeReportRepo{},
	}

	handler := NewHandler(
		order.NewService(&fakeOrderStore{tx: h.orderTx}, h.orderRepo),
		inventory.NewService(&fakeInventoryStore{tx: h.invTx}),
		pricing.NewService(&fakePricingStore{tx: h.priceTx}),
		h.products,
		h.orderRepo,
		h.invRepo,
		h.reports,
	)

	h.mux = http.NewServeMux()
	handler.Register(h.mux)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// --- Tests ---

func TestCreateOrder_Created(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", createOrderRequest{
		CustomerID: 1,
		Lines: []orderLineDTO{
			{ProductID: 10, Quantity: 1},
			{ProductID: 20, Quantity: 2},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeJSON[createOrderResponse](t, rec)
	assert.EqualValues(t, 42, resp.OrderID)
	assert.Equal(t, map[int64]int{10: 1, 20: 2}, h.orderTx.decrements)
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	h := newHarness()

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_InsufficientStockConflict(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", createOrderRequest{
		CustomerID: 1,
		Lines:      []orderLineDTO{{ProductID: 10, Quantity: 51}},
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeJSON[errorResponse](t, rec)
	assert.Contains(t, resp.Message, "insufficient stock")
	assert.Empty(t, h.orderTx.decrements)
}

func TestCreateOrder_UnknownCustomerUnprocessable(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/orders", createOrderRequest{
		CustomerID: 99,
		Lines:      []orderLineDTO{{ProductID: 10, Quantity: 1}},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/orders/7", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderTotal_MissingOrderIsZero(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/orders/9999/total", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[orderTotalResponse](t, rec)
	assert.True(t, resp.Total.IsZero())
}

func TestAdjustStock_RejectionIsNotAnError(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/products/10/stock", adjustStockRequest{Delta: -60})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[adjustStockResponse](t, rec)
	assert.False(t, resp.Applied)
	assert.Equal(t, 55, resp.OldStock)
	assert.Equal(t, 55, resp.NewStock)
	assert.Equal(t, 55, h.invTx.stock[10])
}

func TestAdjustStock_UnknownProduct(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/products/999/stock", adjustStockRequest{Delta: 5})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkUpdatePrices_InvalidPercent(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodPost, "/api/categories/Electronics/prices", bulkPriceRequest{
		Percent: decimal.RequireFromString("-100"),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBulkUpdatePrices_ReportsRowsAffected(t *testing.T) {
	h := newHarness()
	h.priceTx.byCategory["Electronics"] = []product.Product{
		{ID: 10, Price: decimal.RequireFromString("999.99")},
		{ID: 20, Price: decimal.RequireFromString("29.99")},
	}

	rec := h.do(t, http.MethodPost, "/api/categories/Electronics/prices", bulkPriceRequest{
		Percent: decimal.RequireFromString("10"),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[bulkPriceResponse](t, rec)
	assert.Equal(t, 2, resp.RowsAffected)
	assert.Len(t, h.priceTx.applied, 2)
}

func TestPriceList_StreamsNDJSON(t *testing.T) {
	h := newHarness()
	h.products.listings = []product.PriceListing{
		{ProductID: 10, Name: "Laptop", Price: decimal.RequireFromString("999.99"), Category: "Electronics"},
		{ProductID: 30, Name: "Desk Lamp", Price: decimal.RequireFromString("34.50"), Category: "Home"},
	}

	rec := h.do(t, http.MethodGet, "/api/prices", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)

	var first priceListingDTO
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "Laptop", first.Name)
}

func TestTopSellers_InvalidLimit(t *testing.T) {
	h := newHarness()

	rec := h.do(t, http.MethodGet, "/api/reports/top-sellers?limit=zero", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweepOrders_ReportsProcessedCount(t *testing.T) {
	h := newHarness()
	h.orderRepo.pending = []int64{1, 2, 3}

	rec := h.do(t, http.MethodPost, "/api/orders/sweep", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[sweepResponse](t, rec)
	assert.Equal(t, 3, resp.Processed)
	assert.Equal(t, []int64{1, 2, 3}, h.orderRepo.marked)
}
