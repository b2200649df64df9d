package wahindex_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/shaia/wahindex"
)

// TestLargeCatalogInsertion adds large numbers of items across a handful of
// catalogs and checks that filtering and faceting still return correct
// counts, the way the teacher's large-dataset bloom filter tests check
// membership survives at scale.
func TestLargeCatalogInsertion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large dataset test in short mode")
	}

	sizes := []int{100_000, 500_000, 1_000_000}
	for _, n := range sizes {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			start := time.Now()
			e, _, _ := buildStockEngine(t, n)
			t.Logf("inserted %d items in %v (%.0f items/sec)", n, time.Since(start), float64(n)/time.Since(start).Seconds())

			q := e.CreateQuery()
			if err := q.Filter(wahindex.Leaf(wahindex.Exact("category", "tools"))); err != nil {
				t.Fatal(err)
			}
			res, err := q.Execute(context.Background(), 0, 1)
			if err != nil {
				t.Fatal(err)
			}
			want := uint64(n / 4)
			if res.Total < want-1 || res.Total > want+1 {
				t.Fatalf("total = %d, want approximately %d", res.Total, want)
			}
		})
	}
}

// TestLongRunningAddRemoveCompactCycles repeatedly adds and removes items and
// compacts the engine, checking the active/deletion counters and query
// results stay consistent across many cycles.
func TestLongRunningAddRemoveCompactCycles(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping long-running stability test in short mode")
	}

	numCycles := 20
	itemsPerCycle := 2_000

	e := wahindex.NewEngine[stockItem, int](false)
	category, err := wahindex.AddCatalog[stockItem, int, string](e, "category", wahindex.CompressionCompressed, true)
	if err != nil {
		t.Fatal(err)
	}

	nextID := 0
	for cycle := 0; cycle < numCycles; cycle++ {
		var toRemove []int
		for i := 0; i < itemsPerCycle; i++ {
			id := nextID
			nextID++
			it := stockItem{id: id, category: "books"}
			if err := e.Add(it, it.id, func(item stockItem, pos uint64) error {
				return category.Set(item.category, pos, true)
			}); err != nil {
				t.Fatal(err)
			}
			if i%3 == 0 {
				toRemove = append(toRemove, id)
			}
		}
		for _, id := range toRemove {
			if err := e.Remove(id); err != nil {
				t.Fatal(err)
			}
		}
		if err := e.Compact(context.Background()); err != nil {
			t.Fatal(err)
		}
		if e.DeletionCount() != 0 {
			t.Fatalf("cycle %d: deletions after compact = %d, want 0", cycle, e.DeletionCount())
		}

		q := e.CreateQuery()
		if err := q.Filter(wahindex.Leaf(wahindex.Exact("category", "books"))); err != nil {
			t.Fatal(err)
		}
		res, err := q.Execute(context.Background(), 0, 1)
		if err != nil {
			t.Fatal(err)
		}
		if res.Total != e.ActiveItemCount() {
			t.Fatalf("cycle %d: total %d != active item count %d", cycle, res.Total, e.ActiveItemCount())
		}
	}

	runtime.GC()
}

// TestExtremeEdgeCases covers unusual inputs: an engine with zero items, a
// catalog with a single key holding every item, and sparse high bit
// positions set directly on a compressed vector, which force the WAH
// zero-fill path across large gaps.
func TestExtremeEdgeCases(t *testing.T) {
	t.Run("empty engine", func(t *testing.T) {
		e := wahindex.NewEngine[stockItem, int](false)
		if _, err := wahindex.AddCatalog[stockItem, int, string](e, "category", wahindex.CompressionCompressed, true); err != nil {
			t.Fatal(err)
		}
		q := e.CreateQuery()
		res, err := q.Execute(context.Background(), 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if res.Total != 0 || len(res.PrimaryKeys) != 0 {
			t.Fatalf("empty engine result = %+v, want zero", res)
		}
	})

	t.Run("single key holds every item", func(t *testing.T) {
		e, _, _ := buildStockEngine(t, 0)
		category, err := wahindex.AddCatalog[stockItem, int, string](e, "all", wahindex.CompressionCompressed, true)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 1000; i++ {
			it := stockItem{id: i}
			if err := e.Add(it, it.id, func(item stockItem, pos uint64) error {
				return category.Set("x", pos, true)
			}); err != nil {
				t.Fatal(err)
			}
		}
		q := e.CreateQuery()
		if err := q.Filter(wahindex.Leaf(wahindex.Exact("all", "x"))); err != nil {
			t.Fatal(err)
		}
		res, err := q.Execute(context.Background(), 0, 1)
		if err != nil {
			t.Fatal(err)
		}
		if res.Total != 1000 {
			t.Fatalf("total = %d, want 1000", res.Total)
		}
	})

	t.Run("sparse high bit positions", func(t *testing.T) {
		v, err := wahindex.NewVector(wahindex.CompressionCompressed, false)
		if err != nil {
			t.Fatal(err)
		}
		positions := []uint64{0, 31, 32, 62, 1_000_000, 10_000_000}
		for _, p := range positions {
			if err := v.SetBit(p, true); err != nil {
				t.Fatal(err)
			}
		}
		if v.Population() != uint64(len(positions)) {
			t.Fatalf("population = %d, want %d", v.Population(), len(positions))
		}
	})
}
