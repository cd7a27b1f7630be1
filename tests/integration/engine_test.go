//go:build integration

package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderflow/internal/domain/inventory"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/pricing"
	"github.com/xenking/orderflow/internal/repository"
)

func TestCreateOrder(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	customerID := seedCustomer(t, pool, "order@example.com")
	laptopID := seedProduct(t, pool, "Laptop", "999.99", 50, "Electronics")
	mouseID := seedProduct(t, pool, "Mouse", "29.99", 100, "Electronics")

	store := repository.NewStore(pool)
	orderRepo := repository.NewOrderRepository(pool)
	svc := order.NewService(store.Orders(), orderRepo)

	orderID, err := svc.CreateOrder(ctx, customerID, []order.Line{
		{ProductID: laptopID, Quantity: 1},
		{ProductID: mouseID, Quantity: 2},
	})
	require.NoError(t, err)
	require.NotZero(t, orderID)

	o, err := orderRepo.GetByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("1059.97").Equal(o.TotalAmount),
		"total %s", o.TotalAmount)
	require.Len(t, o.Items, 2)

	// Stock decremented and unit prices snapshotted.
	assert.Equal(t, 49, getProduct(t, pool, laptopID).Stock)
	assert.Equal(t, 98, getProduct(t, pool, mouseID).Stock)

	// One audit entry per product.
	entries, err := repository.NewInventoryRepository(pool).ListByProduct(ctx, laptopID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 50, entries[0].OldStock)
	assert.Equal(t, 49, entries[0].NewStock)
}

func TestCreateOrder_InsufficientStockRollsBack(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	customerID := seedCustomer(t, pool, "rollback@example.com")
	cheapID := seedProduct(t, pool, "Notebook", "8.90", 300, "Stationery")
	scarceID := seedProduct(t, pool, "Office Chair", "189.00", 5, "Home")

	store := repository.NewStore(pool)
	orderRepo := repository.NewOrderRepository(pool)
	svc := order.NewService(store.Orders(), orderRepo)

	_, err := svc.CreateOrder(ctx, customerID, []order.Line{
		{ProductID: cheapID, Quantity: 10},
		{ProductID: scarceID, Quantity: 6},
	})

	var isErr *order.InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, scarceID, isErr.ProductID)
	assert.Equal(t, 6, isErr.Requested)
	assert.Equal(t, 5, isErr.Available)

	// The satisfiable line must not leave any trace either.
	assert.Equal(t, 300, getProduct(t, pool, cheapID).Stock)
	assert.Equal(t, 5, getProduct(t, pool, scarceID).Stock)

	list, err := orderRepo.ListByCustomer(ctx, customerID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateOrder_DuplicateLines(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	customerID := seedCustomer(t, pool, "dup@example.com")
	productID := seedProduct(t, pool, "Keyboard", "79.99", 50, "Electronics")

	store := repository.NewStore(pool)
	orderRepo := repository.NewOrderRepository(pool)
	svc := order.NewService(store.Orders(), orderRepo)

	orderID, err := svc.CreateOrder(ctx, customerID, []order.Line{
		{ProductID: productID, Quantity: 2},
		{ProductID: productID, Quantity: 3},
	})
	require.NoError(t, err)

	// Lines stay independent items, stock is decremented once by the sum.
	o, err := orderRepo.GetByID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 45, getProduct(t, pool, productID).Stock)

	entries, err := repository.NewInventoryRepository(pool).ListByProduct(ctx, productID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 50, entries[0].OldStock)
	assert.Equal(t, 45, entries[0].NewStock)
}

func TestCreateOrder_ConcurrentOrdersNeverOversell(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	customerID := seedCustomer(t, pool, "race@example.com")
	productID := seedProduct(t, pool, "Desk Lamp", "34.50", 20, "Home")

	store := repository.NewStore(pool)
	orderRepo := repository.NewOrderRepository(pool)
	svc := order.NewService(store.Orders(), orderRepo)

	const (
		workers = 10
		perLine = 3
	)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateOrder(ctx, customerID, []order.Line{
				{ProductID: productID, Quantity: perLine},
			})
			if err == nil {
				succeeded.Add(1)
				return
			}
			var isErr *order.InsufficientStockError
			if !errors.As(err, &isErr) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// 20 units / 3 per order: exactly 6 orders can succeed.
	assert.EqualValues(t, 6, succeeded.Load())
	assert.Equal(t, 2, getProduct(t, pool, productID).Stock)
}

func TestAdjustStock(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	productID := seedProduct(t, pool, "Mouse", "29.99", 55, "Electronics")

	store := repository.NewStore(pool)
	svc := inventory.NewService(store.Inventory())

	adj, err := svc.AdjustStock(ctx, productID, 20)
	require.NoError(t, err)
	assert.True(t, adj.Applied())
	assert.Equal(t, 75, getProduct(t, pool, productID).Stock)

	// A draw-down past zero is rejected without touching anything.
	adj, err = svc.AdjustStock(ctx, productID, -80)
	require.NoError(t, err)
	assert.False(t, adj.Applied())
	assert.Equal(t, 75, getProduct(t, pool, productID).Stock)

	entries, err := repository.NewInventoryRepository(pool).ListByProduct(ctx, productID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, inventory.ReasonManualAdjustment, entries[0].Reason)
}

func TestBulkUpdatePrices(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	laptopID := seedProduct(t, pool, "Laptop", "999.99", 50, "Electronics")
	mouseID := seedProduct(t, pool, "Mouse", "29.99", 100, "Electronics")
	lampID := seedProduct(t, pool, "Desk Lamp", "34.50", 40, "Home")

	store := repository.NewStore(pool)
	svc := pricing.NewService(store.Pricing())

	n, err := svc.BulkUpdatePrices(ctx, "Electronics", decimal.RequireFromString("10"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.True(t, decimal.RequireFromString("1099.99").Equal(getProduct(t, pool, laptopID).Price))
	assert.True(t, decimal.RequireFromString("32.99").Equal(getProduct(t, pool, mouseID).Price))
	// Other categories untouched.
	assert.True(t, decimal.RequireFromString("34.50").Equal(getProduct(t, pool, lampID).Price))
}

func TestBulkUpdatePrices_FloorRejectsWholeBatch(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	okID := seedProduct(t, pool, "Poster", "100.00", 10, "Clearance")
	floorID := seedProduct(t, pool, "Sticker", "0.01", 10, "Clearance")

	store := repository.NewStore(pool)
	svc := pricing.NewService(store.Pricing())

	_, err := svc.BulkUpdatePrices(ctx, "Clearance", decimal.RequireFromString("-99"))

	var pfErr *pricing.PriceFloorError
	require.ErrorAs(t, err, &pfErr)
	assert.Equal(t, floorID, pfErr.ProductID)

	// No product in the category was repriced.
	assert.True(t, decimal.RequireFromString("100.00").Equal(getProduct(t, pool, okID).Price))
	assert.True(t, decimal.RequireFromString("0.01").Equal(getProduct(t, pool, floorID).Price))
}

func TestCalculateOrderTotal(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	customerID := seedCustomer(t, pool, "total@example.com")
	productID := seedProduct(t, pool, "Notebook", "8.90", 300, "Stationery")

	store := repository.NewStore(pool)
	orderRepo := repository.NewOrderRepository(pool)
	svc := order.NewService(store.Orders(), orderRepo)

	orderID, err := svc.CreateOrder(ctx, customerID, []order.Line{
		{ProductID: productID, Quantity: 4},
	})
	require.NoError(t, err)

	total, err := svc.CalculateOrderTotal(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35.60").Equal(total), "total %s", total)

	// A missing order yields zero, not an error.
	total, err = svc.CalculateOrderTotal(ctx, orderID+12345)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestProcessPendingOrders(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	customerID := seedCustomer(t, pool, "sweep@example.com")
	productID := seedProduct(t, pool, "Notebook", "8.90", 300, "Stationery")

	store := repository.NewStore(pool)
	orderRepo := repository.NewOrderRepository(pool)
	svc := order.NewService(store.Orders(), orderRepo)

	var ids []int64
	for range 3 {
		id, err := svc.CreateOrder(ctx, customerID, []order.Line{
			{ProductID: productID, Quantity: 1},
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := svc.ProcessPendingOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, id := range ids {
		o, err := orderRepo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, order.StatusProcessed, o.Status)
	}

	// Already-processed orders are not picked up again.
	n, err = svc.ProcessPendingOrders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// And a direct transition on a processed order reports ErrNotPending.
	require.ErrorIs(t, orderRepo.MarkProcessed(ctx, ids[0]), order.ErrNotPending)
}
