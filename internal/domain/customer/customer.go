package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer identifies who placed an order. Registration happens outside the
// engine; the order engine only checks existence.
type Customer struct {
	ID           int64
	Name         string
	Email        string
	Phone        string
	RegisteredAt time.Time
}

// Repository defines read access to customers.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Customer, error)
}
