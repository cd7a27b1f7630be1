package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, customer_id, order_date, total_amount, status
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items WHERE order_id = $1 ORDER BY id`

	listOrdersByCustomerSQL = `SELECT id, customer_id, order_date, total_amount, status
		FROM orders WHERE customer_id = $1 ORDER BY order_date DESC, id DESC`

	sumOrderItemsSQL = `SELECT COALESCE(SUM(quantity * unit_price), 0)
		FROM order_items WHERE order_id = $1`

	pendingOrderIDsSQL = `SELECT id FROM orders
		WHERE status = $1 ORDER BY order_date, id`

	markProcessedSQL = `UPDATE orders SET status = $2
		WHERE id = $1 AND status = $3`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns an order header together with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %d", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %d", id)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting items of order %d", id)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, errors.Wrapf(err, "getting items of order %d", id)
	}

	return &o, nil
}

// ListByCustomer returns a customer's order headers, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing orders of customer %d", customerID)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// SumItems returns the sum of quantity x unit_price over the order's
// persisted items. A missing or empty order sums to zero.
func (r *OrderRepository) SumItems(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx, sumOrderItemsSQL, orderID).Scan(&total)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "summing items of order %d", orderID)
	}
	return total, nil
}

// PendingIDs returns the ids of all PENDING orders ordered by order date.
func (r *OrderRepository) PendingIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, pendingOrderIDsSQL, order.StatusPending)
	if err != nil {
		return nil, errors.Wrap(err, "listing pending orders")
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// MarkProcessed transitions one PENDING order to PROCESSED. The status guard
// in the statement makes the transition idempotent under concurrent sweeps:
// whoever updates zero rows lost the race or targeted a non-pending order.
func (r *OrderRepository) MarkProcessed(ctx context.Context, orderID int64) error {
	tag, err := r.pool.Exec(ctx, markProcessedSQL, orderID, order.StatusProcessed, order.StatusPending)
	if err != nil {
		return errors.Wrapf(err, "marking order %d processed", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotPending
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		total decimal.Decimal
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.OrderDate, &total, &o.Status)
	o.TotalAmount = total
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var (
		item  order.Item
		price decimal.Decimal
	)
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &price)
	item.UnitPrice = price
	return item, err
}
