package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Price and Stock
// are only ever mutated through the order, inventory, and pricing services;
// everything else reads them.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
}

// PriceListing is a single row of the catalog price list.
type PriceListing struct {
	ProductID int64
	Name      string
	Price     decimal.Decimal
	Category  string
}

// Repository defines read operations on the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	ListByCategory(ctx context.Context, category string) ([]Product, error)

	// PriceList streams the full price list ordered by category then product
	// id, invoking fn once per row. fn returning an error stops the scan.
	PriceList(ctx context.Context, fn func(PriceListing) error) error
}
