package order

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/inventory"
	"github.com/xenking/orderflow/internal/domain/product"
)

// Service is the order engine.
type Service struct {
	store  Store
	orders Repository
}

// NewService creates an order Service with the required persistence
// dependencies.
func NewService(store Store, orders Repository) *Service {
	return &Service{
		store:  store,
		orders: orders,
	}
}

// CreateOrder validates every line of the request against the catalog and,
// only if all lines are satisfiable, persists the order header, its items,
// the stock decrements, and one audit entry per affected product as a single
// transaction. Any failure rolls back everything; a rejected order leaves no
// trace.
//
// Prices charged are the ones loaded under lock at validation time, so the
// stock check and the charge always see the same catalog row. Returns the id
// of the created order.
func (s *Service) CreateOrder(ctx context.Context, customerID int64, lines []Line) (int64, error) {
	if len(lines) == 0 {
		return 0, ErrEmptyOrder
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return 0, &InvalidQuantityError{ProductID: line.ProductID}
		}
	}

	var orderID int64

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.CustomerExists(ctx, customerID)
		if err != nil {
			return errors.Wrap(err, "check customer")
		}
		if !ok {
			return &CustomerNotFoundError{CustomerID: customerID}
		}

		// One batched locked read for every referenced product. Ids are
		// deduplicated and sorted so concurrent orders acquire row locks in
		// a consistent global order.
		ids := make([]int64, 0, len(lines))
		for _, line := range lines {
			if !slices.Contains(ids, line.ProductID) {
				ids = append(ids, line.ProductID)
			}
		}
		slices.Sort(ids)

		locked, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "lock products")
		}
		byID := make(map[int64]product.Product, len(locked))
		for _, p := range locked {
			byID[p.ID] = p
		}

		// Validate every line before mutating anything: each line against
		// the loaded stock, and the combined demand of duplicate lines
		// against it as well.
		demand := make(map[int64]int, len(ids))
		for _, line := range lines {
			p, ok := byID[line.ProductID]
			if !ok {
				return &ProductNotFoundError{ProductID: line.ProductID}
			}
			if line.Quantity > p.Stock {
				return &InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: p.Stock,
				}
			}
			demand[line.ProductID] += line.Quantity
		}
		for _, id := range ids {
			if demand[id] > byID[id].Stock {
				return &InsufficientStockError{
					ProductID: id,
					Requested: demand[id],
					Available: byID[id].Stock,
				}
			}
		}

		// Total from the prices loaded under lock, one item per line with
		// the unit price snapshotted.
		total := decimal.Zero
		items := make([]Item, len(lines))
		for i, line := range lines {
			price := byID[line.ProductID].Price
			total = total.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
			items[i] = Item{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: price,
			}
		}

		orderID, err = tx.InsertOrder(ctx, customerID, total)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		if err := tx.InsertItems(ctx, orderID, items); err != nil {
			return errors.Wrap(err, "insert order items")
		}

		for _, id := range ids {
			qty := demand[id]
			if err := tx.DecrementStock(ctx, id, qty); err != nil {
				return errors.Wrapf(err, "decrement stock for product %d", id)
			}
			if err := tx.AppendInventoryLog(ctx, inventory.LogEntry{
				ProductID: id,
				OldStock:  byID[id].Stock,
				NewStock:  byID[id].Stock - qty,
				Reason:    fmt.Sprintf("Order %d", orderID),
			}); err != nil {
				return errors.Wrapf(err, "append audit entry for product %d", id)
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return orderID, nil
}

// CalculateOrderTotal sums quantity x unit_price over the order's persisted
// items. It deliberately returns zero, not an error, for a missing or empty
// order: callers use it for verification against stored headers, where an
// absent order simply contributes nothing.
func (s *Service) CalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	total, err := s.orders.SumItems(ctx, orderID)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "sum items of order %d", orderID)
	}
	return total, nil
}

// ProcessPendingOrders transitions every PENDING order to PROCESSED in order
// date order, one short transaction per order. A failing order is logged and
// skipped without aborting the sweep or touching other orders; this is a
// best-effort batch, intentionally not an all-or-nothing mutation. Returns
// the number of orders transitioned.
func (s *Service) ProcessPendingOrders(ctx context.Context) (int, error) {
	ids, err := s.orders.PendingIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list pending orders")
	}

	lg := zctx.From(ctx)
	processed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if err := s.orders.MarkProcessed(ctx, id); err != nil {
			lg.Warn("Order skipped during processing sweep",
				zap.Int64("order_id", id),
				zap.Error(err),
			)
			continue
		}
		processed++
	}

	return processed, nil
}
