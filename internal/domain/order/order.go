// Package order implements the transactional order engine: multi-line order
// creation, order total calculation, and the daily processing sweep.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/inventory"
	"github.com/xenking/orderflow/internal/domain/product"
)

// Status is the lifecycle state of an order. The only transition is
// PENDING -> PROCESSED, performed by the processing sweep.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
)

// Order is a persisted order header with its line items.
type Order struct {
	ID          int64
	CustomerID  int64
	OrderDate   time.Time
	TotalAmount decimal.Decimal
	Status      Status
	Items       []Item
}

// Item is a persisted order line. UnitPrice is a snapshot of the catalog
// price at order time and never changes afterwards, so historical totals
// stay accurate when the catalog price moves.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Line is one (product, quantity) pair of an order request. Duplicate
// product ids are legal and treated as independent lines.
type Line struct {
	ProductID int64
	Quantity  int
}

// Sentinel errors for order operations.
var (
	ErrEmptyOrder = errors.New("order must contain at least one line")
	ErrNotFound   = errors.New("order not found")
	ErrNotPending = errors.New("order is not pending")
)

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// CustomerNotFoundError indicates the ordering customer does not exist.
type CustomerNotFoundError struct {
	CustomerID int64
}

func (e *CustomerNotFoundError) Error() string {
	return fmt.Sprintf("customer %d not found", e.CustomerID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError aborts the entire order when any line (or the
// combined demand of duplicate lines) exceeds the product's current stock.
type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Store is the transactional persistence surface of the order engine.
// InTx runs fn inside one transaction; every write fn performs commits
// atomically or is rolled back in full.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside an order transaction.
// LockProducts takes every referenced product row under a write lock for the
// duration of the transaction, so the stock-check-then-decrement sequence is
// free of lost updates when concurrent orders race for the same product.
type Tx interface {
	CustomerExists(ctx context.Context, customerID int64) (bool, error)
	LockProducts(ctx context.Context, ids []int64) ([]product.Product, error)
	InsertOrder(ctx context.Context, customerID int64, total decimal.Decimal) (int64, error)
	InsertItems(ctx context.Context, orderID int64, items []Item) error
	DecrementStock(ctx context.Context, productID int64, quantity int) error
	AppendInventoryLog(ctx context.Context, entry inventory.LogEntry) error
}

// Repository defines the non-transactional order operations: reads for
// reporting, the persisted-items total, and the per-order sweep transition.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]Order, error)

	// SumItems returns the sum of quantity x unit_price over the order's
	// persisted items, and zero when the order has no items or does not
	// exist.
	SumItems(ctx context.Context, orderID int64) (decimal.Decimal, error)

	// PendingIDs returns ids of all PENDING orders ordered by order date.
	PendingIDs(ctx context.Context) ([]int64, error)

	// MarkProcessed transitions a single PENDING order to PROCESSED in its
	// own short transaction. Returns ErrNotPending when the order is missing
	// or already processed.
	MarkProcessed(ctx context.Context, orderID int64) error
}
