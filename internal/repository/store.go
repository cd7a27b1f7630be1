package repository

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/inventory"
	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/pricing"
	"github.com/xenking/orderflow/internal/domain/product"
)

const (
	txMaxRetries = 3
	txBackoff    = 50 * time.Millisecond
)

const (
	customerExistsSQL = `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`

	lockProductsSQL = `SELECT id, name, description, price, stock, category
		FROM products WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	lockCategorySQL = `SELECT id, name, description, price, stock, category
		FROM products WHERE category = $1 ORDER BY id FOR UPDATE`

	insertOrderSQL = `INSERT INTO orders (customer_id, total_amount, status)
		VALUES ($1, $2, $3) RETURNING id`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)`

	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	getStockForUpdateSQL = `SELECT stock FROM products WHERE id = $1 FOR UPDATE`

	setStockSQL = `UPDATE products SET stock = $2 WHERE id = $1`

	setPriceSQL = `UPDATE products SET price = $2 WHERE id = $1`

	appendInventoryLogSQL = `INSERT INTO inventory_log (product_id, old_stock, new_stock, reason)
		VALUES ($1, $2, $3, $4)`
)

// Store runs the engine's multi-row transactions against PostgreSQL. Every
// transaction executes at read-committed isolation with explicit FOR UPDATE
// row locks; transient conflicts (deadlock, lock timeout, serialization) are
// retried with backoff before surfacing to the caller.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store that uses the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Orders exposes the store as the order engine's transactional surface.
func (s *Store) Orders() order.Store { return orderStore{s} }

// Inventory exposes the store as the stock adjustment service's
// transactional surface.
func (s *Store) Inventory() inventory.Store { return inventoryStore{s} }

// Pricing exposes the store as the bulk price updater's transactional
// surface.
func (s *Store) Pricing() pricing.Store { return pricingStore{s} }

type orderStore struct{ s *Store }

func (o orderStore) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	return o.s.inTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type inventoryStore struct{ s *Store }

func (i inventoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	return i.s.inTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

type pricingStore struct{ s *Store }

func (p pricingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx pricing.Tx) error) error {
	return p.s.inTx(ctx, func(ctx context.Context, tx *Tx) error { return fn(ctx, tx) })
}

// inTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise. Retryable conflicts rerun fn in a fresh transaction up to
// txMaxRetries times with exponential backoff and jitter.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	backoff := txBackoff

	for attempt := 0; ; attempt++ {
		err := pgx.BeginFunc(ctx, s.pool, func(ptx pgx.Tx) error {
			return fn(ctx, &Tx{tx: ptx})
		})
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == txMaxRetries {
			return errors.Wrapf(err, "transaction retries exhausted (%d)", txMaxRetries)
		}

		jitter := time.Duration(rand.Int63n(int64(backoff / 4)))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

// Compile-time checks ensuring Tx satisfies every domain transaction surface.
var (
	_ order.Tx     = (*Tx)(nil)
	_ inventory.Tx = (*Tx)(nil)
	_ pricing.Tx   = (*Tx)(nil)
)

// Tx is one in-flight engine transaction. It implements the transaction
// interfaces of the order, inventory, and pricing domains, so a single
// commit covers writes spanning all of them.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, customerExistsSQL, customerID).Scan(&exists); err != nil {
		return false, errors.Wrapf(err, "checking customer %d", customerID)
	}
	return exists, nil
}

// LockProducts takes every matching product row under FOR UPDATE. Rows are
// locked in id order; callers pass sorted ids so concurrent transactions
// cannot deadlock on each other's lock sets.
func (t *Tx) LockProducts(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockProductsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "locking products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// LockProductsByCategory takes every product row in the category under
// FOR UPDATE.
func (t *Tx) LockProductsByCategory(ctx context.Context, category string) ([]product.Product, error) {
	rows, err := t.tx.Query(ctx, lockCategorySQL, category)
	if err != nil {
		return nil, errors.Wrapf(err, "locking category %q", category)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// InsertOrder persists a PENDING order header and returns its id. Ids come
// from the orders sequence, so they are unique and strictly increasing
// across concurrent callers.
func (t *Tx) InsertOrder(ctx context.Context, customerID int64, total decimal.Decimal) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, insertOrderSQL, customerID, total, order.StatusPending).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "inserting order")
	}
	return id, nil
}

// InsertItems persists all order lines in a single batch round trip.
func (t *Tx) InsertItems(ctx context.Context, orderID int64, items []order.Item) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(insertOrderItemSQL, orderID, item.ProductID, item.Quantity, item.UnitPrice)
	}

	results := t.tx.SendBatch(ctx, batch)
	for range items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return errors.Wrap(err, "inserting order item")
		}
	}
	return results.Close()
}

// DecrementStock subtracts quantity from the product's stock. The statement
// guard stock >= quantity backstops the validated, locked read: it can only
// miss if the engine's own bookkeeping is wrong.
func (t *Tx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, productID, quantity)
	if err != nil {
		return errors.Wrapf(err, "decrementing stock of product %d", productID)
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("stock underflow guard hit for product %d", productID)
	}
	return nil
}

func (t *Tx) GetStockForUpdate(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, getStockForUpdateSQL, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, product.ErrNotFound
		}
		return 0, errors.Wrapf(err, "locking product %d", productID)
	}
	return stock, nil
}

func (t *Tx) SetStock(ctx context.Context, productID int64, stock int) error {
	_, err := t.tx.Exec(ctx, setStockSQL, productID, stock)
	if err != nil {
		return errors.Wrapf(err, "setting stock of product %d", productID)
	}
	return nil
}

// UpdatePrices applies all price updates of a bulk batch in one round trip.
func (t *Tx) UpdatePrices(ctx context.Context, updates []pricing.PriceUpdate) error {
	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(setPriceSQL, u.ProductID, u.Price)
	}

	results := t.tx.SendBatch(ctx, batch)
	for range updates {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return errors.Wrap(err, "updating price")
		}
	}
	return results.Close()
}

// AppendInventoryLog appends one audit trail entry. The logged_at timestamp
// comes from the database clock, keeping audit ordering consistent with
// transaction commit order on a single store.
func (t *Tx) AppendInventoryLog(ctx context.Context, entry inventory.LogEntry) error {
	_, err := t.tx.Exec(ctx, appendInventoryLogSQL,
		entry.ProductID, entry.OldStock, entry.NewStock, entry.Reason,
	)
	if err != nil {
		return errors.Wrapf(err, "appending inventory log for product %d", entry.ProductID)
	}
	return nil
}

// AppendLog implements inventory.Tx; identical to AppendInventoryLog, named
// for the inventory domain's narrower interface.
func (t *Tx) AppendLog(ctx context.Context, entry inventory.LogEntry) error {
	return t.AppendInventoryLog(ctx, entry)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Category)
	p.Price = price
	return p, err
}
