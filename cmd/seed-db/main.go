// Command seed-db loads the demo catalog and customer set into PostgreSQL.
// It is idempotent: products are keyed by name, customers by email.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/customer"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/repository"
)

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

type customerJSON struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		customersFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&customersFile, "customers-file", "db/seed/customers.json", "path to customers JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, customersFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, customersFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedCustomers(ctx, repository.NewCustomerRepository(pool), customersFile); err != nil {
		return errors.Wrap(err, "seed customers")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		id, err := repo.Upsert(ctx, product.Product{
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			Category:    p.Category,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert product %q", p.Name)
		}

		slog.Info("upserted product", slog.Int64("id", id), slog.String("name", p.Name))
	}

	return nil
}

func seedCustomers(ctx context.Context, repo *repository.CustomerRepository, customersFile string) error {
	slog.Info("reading customers file", slog.String("path", customersFile))

	data, err := os.ReadFile(customersFile)
	if err != nil {
		return errors.Wrap(err, "read customers file")
	}

	var customers []customerJSON
	if err := json.Unmarshal(data, &customers); err != nil {
		return errors.Wrap(err, "parse customers JSON")
	}

	slog.Info("upserting customers", slog.Int("count", len(customers)))

	for _, c := range customers {
		id, err := repo.Upsert(ctx, customer.Customer{
			Name:  c.Name,
			Email: c.Email,
			Phone: c.Phone,
		})
		if err != nil {
			return errors.Wrapf(err, "upsert customer %q", c.Email)
		}

		slog.Info("upserted customer", slog.Int64("id", id), slog.String("email", c.Email))
	}

	return nil
}
