package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, description, price, stock, category
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, description, price, stock, category
		FROM products WHERE id = ANY($1) ORDER BY id`

	listByCategorySQL = `SELECT id, name, description, price, stock, category
		FROM products WHERE category = $1 ORDER BY id`

	priceListSQL = `SELECT id, name, price, category
		FROM products ORDER BY category, id`

	upsertProductSQL = `INSERT INTO products (name, description, price, stock, category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET description = EXCLUDED.description,
		    price = EXCLUDED.price,
		    stock = EXCLUDED.stock,
		    category = EXCLUDED.category
		RETURNING id`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %d", id)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given ids.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "getting products by ids")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ListByCategory returns all products in the category ordered by id.
func (r *ProductRepository) ListByCategory(ctx context.Context, category string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listByCategorySQL, category)
	if err != nil {
		return nil, errors.Wrapf(err, "listing category %q", category)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// PriceList streams the catalog price list ordered by category then id,
// invoking fn once per row without materializing the whole catalog.
func (r *ProductRepository) PriceList(ctx context.Context, fn func(product.PriceListing) error) error {
	rows, err := r.pool.Query(ctx, priceListSQL)
	if err != nil {
		return errors.Wrap(err, "querying price list")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			listing product.PriceListing
			price   decimal.Decimal
		)
		if err := rows.Scan(&listing.ProductID, &listing.Name, &price, &listing.Category); err != nil {
			return errors.Wrap(err, "scanning price listing")
		}
		listing.Price = price

		if err := fn(listing); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Upsert inserts or refreshes a catalog product keyed by its unique name and
// returns the product id. Used by seeding and catalog ingest.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, upsertProductSQL,
		p.Name, p.Description, p.Price, p.Stock, p.Category,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upserting product %q", p.Name)
	}
	return id, nil
}
