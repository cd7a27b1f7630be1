// Command catalog-ingest imports products from gzip-compressed supplier
// feeds. Feeds are JSON lines files (one product per line) and can be large,
// so each pass streams.
//
// A product is accepted only when at least two independent feeds list it
// (matched by name). Pass 1 builds one bloom filter per feed; pass 2
// re-streams each feed and keeps records whose name tests positive in some
// other feed's filter. Bloom false positives can only let an extra candidate
// through pass 2, and the exact bitmask merge discards it.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

// feedProduct is one line of a supplier feed.
type feedProduct struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

func (p feedProduct) valid() bool {
	return p.Name != "" && p.Category != "" && p.Price.IsPositive() && p.Stock >= 0
}

// fileResult holds candidate records found in a single feed during pass 2.
type fileResult struct {
	seen    map[string]uint
	records map[string]feedProduct
}

func main() {
	var (
		dataDir     string
		numFeeds    int
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing supplierN.jsonl.gz feeds")
	flag.IntVar(&numFeeds, "feeds", 3, "number of supplier feeds to ingest")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if numFeeds < 2 {
		slog.Error("at least two feeds are required for cross-validation")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, numFeeds, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir string, numFeeds int, databaseURL string) error {
	files := make([]string, numFeeds)
	for i := range numFeeds {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("supplier%d.jsonl.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: cross-validating products")

	accepted, err := findAcceptedProducts(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "cross-validate products")
	}

	slog.Info("accepted products", slog.Int("count", len(accepted)))

	if len(accepted) == 0 {
		slog.Info("no products to ingest")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, repository.NewProductRepository(pool), accepted); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamFeed(ctx, path, func(p feedProduct) {
			filter.AddString(p.Name)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("products", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_products", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findAcceptedProducts re-streams each feed and checks names against OTHER
// feeds' bloom filters. A product is accepted if it appears in 2 or more
// feeds; the record from the lowest-numbered feed wins.
func findAcceptedProducts(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]feedProduct, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all feeds.
	merged := make(map[string]uint)
	for _, r := range results {
		for name, mask := range r.seen {
			merged[name] |= mask
		}
	}

	// Keep products appearing in 2+ feeds.
	var accepted []feedProduct
	for name, mask := range merged {
		if bits.OnesCount(mask) < 2 {
			continue
		}
		for _, r := range results {
			if rec, ok := r.records[name]; ok {
				accepted = append(accepted, rec)
				break
			}
		}
	}

	return accepted, nil
}

func findCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		seen := make(map[string]uint)
		records := make(map[string]feedProduct)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamFeed(ctx, path, func(p feedProduct) {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("products", count),
				)
			}

			// Check if this product appears in any OTHER feed's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(p.Name) {
					seen[p.Name] |= fileBit
					if _, ok := records[p.Name]; !ok {
						records[p.Name] = p
					}
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_products", count),
			slog.Int("candidates", len(seen)),
		)

		results[idx] = fileResult{seen: seen, records: records}
		return nil
	}
}

// streamFeed opens a gzip-compressed JSON lines file and calls fn for each
// valid product record. Malformed or invalid lines are skipped.
func streamFeed(ctx context.Context, path string, fn func(p feedProduct)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var malformed uint64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var p feedProduct
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil || !p.valid() {
			malformed++
			continue
		}
		fn(p)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	if malformed > 0 {
		slog.Warn("skipped malformed lines", slog.String("file", path), slog.Uint64("count", malformed))
	}

	return nil
}

// writeProducts upserts all accepted products into the catalog.
func writeProducts(ctx context.Context, repo *repository.ProductRepository, products []feedProduct) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := repo.Upsert(ctx, product.Product{
			Name:        p.Name,
			Description: p.Description,
			Price:       p.Price,
			Stock:       p.Stock,
			Category:    p.Category,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %q", p.Name)
		}
	}

	return nil
}
