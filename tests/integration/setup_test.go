//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/orderflow/internal/domain/customer"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/repository"
)

// setupTestDB starts a disposable PostgreSQL container, connects a pool, and
// applies the schema. The container is terminated when the test finishes.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := repository.NewPool(ctx, dsn)
	require.NoError(t, err, "connect pool")
	t.Cleanup(pool.Close)

	require.NoError(t, repository.RunMigrations(ctx, pool), "run migrations")

	return pool
}

// seedCustomer inserts a customer and returns its id.
func seedCustomer(t *testing.T, pool *pgxpool.Pool, email string) int64 {
	t.Helper()

	id, err := repository.NewCustomerRepository(pool).Upsert(context.Background(), customer.Customer{
		Name:  "Test Customer",
		Email: email,
	})
	require.NoError(t, err)
	return id
}

// seedProduct inserts a product and returns its id.
func seedProduct(t *testing.T, pool *pgxpool.Pool, name, price string, stock int, category string) int64 {
	t.Helper()

	id, err := repository.NewProductRepository(pool).Upsert(context.Background(), product.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Category: category,
	})
	require.NoError(t, err)
	return id
}

// getProduct loads a product by id, failing the test on error.
func getProduct(t *testing.T, pool *pgxpool.Pool, id int64) *product.Product {
	t.Helper()

	p, err := repository.NewProductRepository(pool).GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}
