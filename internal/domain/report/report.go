// Package report defines the read-only reporting views over persisted
// orders and products.
package report

import (
	"context"

	"github.com/shopspring/decimal"
)

// TopSeller is one row of the top-seller ranking, ordered by units sold.
type TopSeller struct {
	ProductID int64
	Name      string
	UnitsSold int64
	Revenue   decimal.Decimal
}

// Repository defines the reporting queries.
type Repository interface {
	TopSellers(ctx context.Context, limit int) ([]TopSeller, error)
}
