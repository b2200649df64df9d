// +build race

package wahindex_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shaia/wahindex"
)

// This file contains tests specifically designed to detect data races.
// Run with: go test -race ./tests/integration

// TestRaceConcurrentQueryExecutes checks for races when many goroutines call
// Query.Execute against the same Engine with no concurrent writer, which is
// the concurrency contract spec §5 promises.
func TestRaceConcurrentQueryExecutes(t *testing.T) {
	e, _, _ := buildStockEngine(t, 2_000)

	numGoroutines := 50
	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q := e.CreateQuery()
			if err := q.Filter(wahindex.Leaf(wahindex.Exact("category", "toys"))); err != nil {
				t.Error(err)
				return
			}
			if err := q.Facet("price"); err != nil {
				t.Error(err)
				return
			}
			if _, err := q.Execute(context.Background(), 0, 5); err != nil {
				t.Error(err)
			}
		}(g)
	}
	wg.Wait()
	t.Logf("completed %d concurrent query executes", numGoroutines)
}

// TestRaceConcurrentFacetPerCatalog checks for races inside Catalog.Facet's
// errgroup fan-out when many distinct queries trigger it simultaneously.
func TestRaceConcurrentFacetPerCatalog(t *testing.T) {
	e, _, _ := buildStockEngine(t, 2_000)

	numGoroutines := 30
	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q := e.CreateQuery()
			if err := q.Facet("category"); err != nil {
				t.Error(err)
				return
			}
			res, err := q.Execute(context.Background(), 0, 0)
			if err != nil {
				t.Error(err)
				return
			}
			if len(res.Facets["category"]) == 0 {
				t.Errorf("goroutine %d: expected non-empty category facet", id)
			}
		}(g)
	}
	wg.Wait()
	t.Log("completed concurrent facet scans")
}

// TestRaceQueryExecuteLatch checks that the one-shot executed latch itself is
// race-free: exactly one of many concurrent Execute calls on the same Query
// must succeed.
func TestRaceQueryExecuteLatch(t *testing.T) {
	e, _, _ := buildStockEngine(t, 100)
	q := e.CreateQuery()

	numGoroutines := 20
	var wg sync.WaitGroup
	results := make(chan error, numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Execute(context.Background(), 0, 10)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	alreadyExecuted := 0
	for err := range results {
		switch err {
		case nil:
			successes++
		case wahindex.ErrAlreadyExecuted:
			alreadyExecuted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}
	if alreadyExecuted != numGoroutines-1 {
		t.Fatalf("alreadyExecuted = %d, want %d", alreadyExecuted, numGoroutines-1)
	}
}
