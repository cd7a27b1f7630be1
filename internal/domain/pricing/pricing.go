// Package pricing implements category-wide bulk price updates.
package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/product"
)

// ErrInvalidPercent is returned for a percentage at or below -100, which
// cannot yield a positive price.
var ErrInvalidPercent = errors.New("percent must be greater than -100")

// PriceFloorError rejects a bulk update that would drive any product's price
// to zero or below. The whole batch is abandoned; no product in the category
// is repriced.
type PriceFloorError struct {
	ProductID int64
	Computed  decimal.Decimal
}

func (e *PriceFloorError) Error() string {
	return fmt.Sprintf("computed price %s for product %d is not positive", e.Computed, e.ProductID)
}

// PriceUpdate is one repriced product of a bulk update batch.
type PriceUpdate struct {
	ProductID int64
	Price     decimal.Decimal
}

// Store is the transactional persistence surface of the bulk price updater.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a bulk price update
// transaction. LockProductsByCategory takes every product row in the
// category under a write lock for the duration of the transaction.
type Tx interface {
	LockProductsByCategory(ctx context.Context, category string) ([]product.Product, error)
	UpdatePrices(ctx context.Context, updates []PriceUpdate) error
}

// Service recomputes prices for entire product categories.
type Service struct {
	store Store
}

// NewService creates a pricing Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// BulkUpdatePrices multiplies the price of every product in the category by
// (1 + percent/100), rounded half-up to 2 decimal places, and applies all
// updates in one transaction: every product in the category is repriced or
// none is. An empty category is not an error and reports zero affected rows.
// Returns the number of products repriced.
func (s *Service) BulkUpdatePrices(ctx context.Context, category string, percent decimal.Decimal) (int, error) {
	if percent.LessThanOrEqual(decimal.NewFromInt(-100)) {
		return 0, ErrInvalidPercent
	}
	factor := decimal.NewFromInt(1).Add(percent.Div(decimal.NewFromInt(100)))

	affected := 0
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProductsByCategory(ctx, category)
		if err != nil {
			return errors.Wrapf(err, "lock category %q", category)
		}
		if len(products) == 0 {
			return nil
		}

		updates := make([]PriceUpdate, len(products))
		for i, p := range products {
			// Round is half away from zero, which is half-up for the
			// positive prices the catalog enforces.
			price := p.Price.Mul(factor).Round(2)
			if !price.IsPositive() {
				return &PriceFloorError{ProductID: p.ID, Computed: price}
			}
			updates[i] = PriceUpdate{ProductID: p.ID, Price: price}
		}

		if err := tx.UpdatePrices(ctx, updates); err != nil {
			return errors.Wrapf(err, "update prices in category %q", category)
		}
		affected = len(updates)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}
