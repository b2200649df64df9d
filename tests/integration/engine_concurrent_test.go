package wahindex_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shaia/wahindex"
)

type stockItem struct {
	id       int
	category string
	region   string
	price    int32
}

func buildStockEngine(t *testing.T, n int) (*wahindex.Engine[stockItem, int], *wahindex.Catalog[string], *wahindex.Catalog[int32]) {
	t.Helper()
	e := wahindex.NewEngine[stockItem, int](false)
	category, err := wahindex.AddCatalog[stockItem, int, string](e, "category", wahindex.CompressionCompressed, true)
	if err != nil {
		t.Fatal(err)
	}
	price, err := wahindex.AddCatalog[stockItem, int, int32](e, "price", wahindex.CompressionCompressed, true)
	if err != nil {
		t.Fatal(err)
	}
	categories := []string{"books", "tools", "toys", "food"}
	for i := 0; i < n; i++ {
		it := stockItem{id: i, category: categories[i%len(categories)], price: int32(i % 1000)}
		if err := e.Add(it, it.id, func(item stockItem, pos uint64) error {
			if err := category.Set(item.category, pos, true); err != nil {
				return err
			}
			return price.Set(item.price, pos, true)
		}); err != nil {
			t.Fatal(err)
		}
	}
	return e, category, price
}

// TestConcurrentQueryReads runs many Query.Execute calls against the same
// Engine concurrently. Spec §5: read-only operations may run concurrently
// with each other provided no writer runs; no structural mutation happens
// here after setup.
func TestConcurrentQueryReads(t *testing.T) {
	numItems := 20_000
	numGoroutines := 100
	queriesPerGoroutine := 50
	if testing.Short() {
		numItems = 2_000
		numGoroutines = 10
		queriesPerGoroutine = 10
	}

	e, _, _ := buildStockEngine(t, numItems)

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)
	start := time.Now()

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < queriesPerGoroutine; i++ {
				q := e.CreateQuery()
				if err := q.Filter(wahindex.Leaf(wahindex.Exact("category", "books"))); err != nil {
					errs <- fmt.Errorf("goroutine %d: filter: %w", id, err)
					return
				}
				if err := q.Facet("price"); err != nil {
					errs <- fmt.Errorf("goroutine %d: facet: %w", id, err)
					return
				}
				res, err := q.Execute(context.Background(), 0, 10)
				if err != nil {
					errs <- fmt.Errorf("goroutine %d: execute: %w", id, err)
					return
				}
				if res.Total == 0 {
					errs <- fmt.Errorf("goroutine %d: expected a nonzero total", id)
					return
				}
			}
		}(g)
	}

	wg.Wait()
	close(errs)

	total := time.Since(start)
	errCount := 0
	for err := range errs {
		t.Error(err)
		errCount++
		if errCount >= 10 {
			t.Error("too many errors, stopping error reporting")
			break
		}
	}

	if errCount == 0 {
		totalQueries := numGoroutines * queriesPerGoroutine
		t.Logf("concurrent reads successful: %d queries in %v (%.0f queries/sec)",
			totalQueries, total, float64(totalQueries)/total.Seconds())
	}
}

// TestConcurrentFacetScan exercises Catalog.Facet's internal parallel fan-out
// (errgroup over per-key AND-population) under concurrent external callers
// at the same time, to catch any aliasing between the facet goroutines'
// bookkeeping and the query-level concurrency above it.
func TestConcurrentFacetScan(t *testing.T) {
	numItems := 5_000
	numGoroutines := 50
	if testing.Short() {
		numItems = 500
		numGoroutines = 5
	}

	e, _, _ := buildStockEngine(t, numItems)

	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := e.CreateQuery()
			_ = q.Facet("category")
			_ = q.Facet("price")
			res, err := q.Execute(context.Background(), 0, 0)
			if err != nil {
				t.Error(err)
				return
			}
			if len(res.Facets["category"]) != 4 {
				t.Errorf("category facet keys = %d, want 4", len(res.Facets["category"]))
			}
		}()
	}
	wg.Wait()
}
