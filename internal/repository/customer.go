package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, name, email, phone, registered_at
		FROM customers WHERE id = $1`

	upsertCustomerSQL = `INSERT INTO customers (name, email, phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone
		RETURNING id`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given
// pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a single customer by id.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting customer %d", id)
	}

	c, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (customer.Customer, error) {
		var c customer.Customer
		err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.RegisteredAt)
		return c, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting customer %d", id)
	}
	return &c, nil
}

// Upsert inserts or refreshes a customer keyed by email and returns the
// customer id. Used by seeding.
func (r *CustomerRepository) Upsert(ctx context.Context, c customer.Customer) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, upsertCustomerSQL, c.Name, c.Email, c.Phone).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "upserting customer %q", c.Email)
	}
	return id, nil
}
