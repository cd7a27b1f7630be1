package inventory

import (
	"context"

	"github.com/go-faster/errors"
)

// Service applies manual stock adjustments against the catalog.
type Service struct {
	store Store
}

// NewService creates an adjustment Service backed by the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// AdjustStock applies a signed stock delta to a single product. Positive
// deltas restock, negative deltas consume. The stock update and its audit
// entry commit as one transaction.
//
// A delta that would drive stock below zero is rejected entirely: no catalog
// change, no audit entry, and the returned Adjustment carries
// AdjustmentRejectedNegativeStock so callers can branch on the business
// outcome separately from infrastructure errors. A missing product returns
// product.ErrNotFound.
func (s *Service) AdjustStock(ctx context.Context, productID int64, delta int) (*Adjustment, error) {
	var adj *Adjustment

	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetStockForUpdate(ctx, productID)
		if err != nil {
			return errors.Wrapf(err, "get stock for product %d", productID)
		}

		next := current + delta
		if next < 0 {
			adj = &Adjustment{
				Outcome:   AdjustmentRejectedNegativeStock,
				ProductID: productID,
				OldStock:  current,
				NewStock:  current,
			}
			return nil
		}

		if err := tx.SetStock(ctx, productID, next); err != nil {
			return errors.Wrapf(err, "set stock for product %d", productID)
		}
		if err := tx.AppendLog(ctx, LogEntry{
			ProductID: productID,
			OldStock:  current,
			NewStock:  next,
			Reason:    ReasonManualAdjustment,
		}); err != nil {
			return errors.Wrapf(err, "append audit entry for product %d", productID)
		}

		adj = &Adjustment{
			Outcome:   AdjustmentApplied,
			ProductID: productID,
			OldStock:  current,
			NewStock:  next,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return adj, nil
}
