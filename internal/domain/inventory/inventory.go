// Package inventory holds the append-only stock audit trail and the manual
// stock adjustment service.
package inventory

import (
	"context"
	"time"
)

// ReasonManualAdjustment is the audit reason recorded for operator-initiated
// stock adjustments.
const ReasonManualAdjustment = "Manual adjustment"

// LogEntry is one row of the stock audit trail. Entries are append-only:
// nothing in this codebase updates or deletes them.
type LogEntry struct {
	ID        int64
	ProductID int64
	OldStock  int
	NewStock  int
	Reason    string
	LoggedAt  time.Time
}

// AdjustmentOutcome distinguishes an applied adjustment from one rejected by
// the floor-at-zero rule. The two outcomes are mutually exclusive results of
// a single evaluation; rejection is not an error.
type AdjustmentOutcome int

const (
	AdjustmentApplied AdjustmentOutcome = iota
	AdjustmentRejectedNegativeStock
)

// Adjustment is the result of an AdjustStock call. On rejection OldStock and
// NewStock both hold the unchanged current stock.
type Adjustment struct {
	Outcome   AdjustmentOutcome
	ProductID int64
	OldStock  int
	NewStock  int
}

// Applied reports whether the adjustment was written to the catalog.
func (a *Adjustment) Applied() bool {
	return a.Outcome == AdjustmentApplied
}

// Store is the transactional persistence surface the adjustment service
// needs. InTx runs fn inside a single transaction: everything fn writes
// commits together or not at all.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside an adjustment transaction.
// GetStockForUpdate takes the product row under a write lock for the
// remainder of the transaction.
type Tx interface {
	GetStockForUpdate(ctx context.Context, productID int64) (int, error)
	SetStock(ctx context.Context, productID int64, stock int) error
	AppendLog(ctx context.Context, entry LogEntry) error
}

// Repository defines read access to the audit trail.
type Repository interface {
	ListByProduct(ctx context.Context, productID int64) ([]LogEntry, error)
}
