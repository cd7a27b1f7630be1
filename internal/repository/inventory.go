package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/inventory"
)

const listInventoryLogSQL = `SELECT id, product_id, old_stock, new_stock, reason, logged_at
	FROM inventory_log WHERE product_id = $1 ORDER BY id`

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository provides read access to the audit trail. All writes go
// through the transactional Store; nothing updates or deletes entries.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository that uses the given
// pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// ListByProduct returns a product's audit trail in append order.
func (r *InventoryRepository) ListByProduct(ctx context.Context, productID int64) ([]inventory.LogEntry, error) {
	rows, err := r.pool.Query(ctx, listInventoryLogSQL, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing inventory log of product %d", productID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.LogEntry, error) {
		var e inventory.LogEntry
		err := row.Scan(&e.ID, &e.ProductID, &e.OldStock, &e.NewStock, &e.Reason, &e.LoggedAt)
		return e, err
	})
}
