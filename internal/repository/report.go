package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/report"
)

// Revenue is computed from the snapshotted unit prices, not current catalog
// prices, so repricing never rewrites history.
const topSellersSQL = `SELECT p.id, p.name,
		SUM(oi.quantity)::BIGINT AS units_sold,
		SUM(oi.quantity * oi.unit_price) AS revenue
	FROM order_items oi
	JOIN products p ON p.id = oi.product_id
	GROUP BY p.id, p.name
	ORDER BY units_sold DESC, p.id
	LIMIT $1`

var _ report.Repository = (*ReportRepository)(nil)

// ReportRepository implements report.Repository backed by PostgreSQL.
type ReportRepository struct {
	pool *pgxpool.Pool
}

// NewReportRepository returns a ReportRepository that uses the given pool.
func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

// TopSellers ranks products by total units sold across all orders.
func (r *ReportRepository) TopSellers(ctx context.Context, limit int) ([]report.TopSeller, error) {
	rows, err := r.pool.Query(ctx, topSellersSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying top sellers")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (report.TopSeller, error) {
		var (
			t       report.TopSeller
			revenue decimal.Decimal
		)
		err := row.Scan(&t.ProductID, &t.Name, &t.UnitsSold, &revenue)
		t.Revenue = revenue
		return t, err
	})
}
