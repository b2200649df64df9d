package main

import (
	"context"
	"fmt"
	"runtime"

	willf_bf "github.com/willf/bloom"

	"github.com/shaia/wahindex"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

type product struct {
	id    int
	color string
	size  string
	price int32
}

func main() {
	fmt.Println("WAH Inverted-Index Engine")
	fmt.Println("=========================")

	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Commit: %s\n", Commit)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("System: GOMAXPROCS=%d, NumCPU=%d\n", runtime.GOMAXPROCS(0), runtime.NumCPU())
	fmt.Printf("Unsafe kernels available: %t\n\n", wahindex.HasUnsafeKernels())

	// Example 1: basic filter + facet.
	fmt.Println("Example 1: Filter + Facet")
	fmt.Println("--------------------------")

	engine := wahindex.NewEngine[product, int](false)
	colorCatalog, err := wahindex.AddCatalog[product, int, string](engine, "color", wahindex.CompressionCompressed, true)
	must(err)
	sizeCatalog, err := wahindex.AddCatalog[product, int, string](engine, "size", wahindex.CompressionCompressed, true)
	must(err)

	items := []product{
		{1, "red", "S", 10},
		{2, "red", "M", 20},
		{3, "green", "S", 30},
		{4, "blue", "L", 40},
		{5, "green", "M", 50},
		{6, "red", "L", 60},
	}
	for _, it := range items {
		it := it
		must(engine.Add(it, it.id, func(item product, pos uint64) error {
			if err := colorCatalog.Set(item.color, pos, true); err != nil {
				return err
			}
			return sizeCatalog.Set(item.size, pos, true)
		}))
	}

	q1 := engine.CreateQuery()
	must(q1.Filter(wahindex.Leaf(wahindex.Exact("color", "red"))))
	must(q1.Facet("size"))
	res1, err := q1.Execute(context.Background(), 0, 10)
	must(err)
	fmt.Printf("red items: %v, total: %d, size facet: %v\n\n", res1.PrimaryKeys, res1.Total, res1.Facets["size"])

	// Example 2: range filter + sort.
	fmt.Println("Example 2: Range Filter + Sort")
	fmt.Println("-------------------------------")

	priceEngine := wahindex.NewEngine[product, int](false)
	priceCatalog, err := wahindex.AddCatalog[product, int, int32](priceEngine, "price", wahindex.CompressionCompressed, true)
	must(err)
	for _, it := range items {
		it := it
		must(priceEngine.Add(it, it.id, func(item product, pos uint64) error {
			return priceCatalog.Set(item.price, pos, true)
		}))
	}

	q2 := priceEngine.CreateQuery()
	var lo, hi any = int32(20), int32(40)
	must(q2.Filter(wahindex.Leaf(wahindex.RangeParam("price", lo, hi))))
	must(q2.Sort("price", false))
	res2, err := q2.Execute(context.Background(), 0, 10)
	must(err)
	fmt.Printf("price in [20,40] desc: %v, total: %d\n\n", res2.PrimaryKeys, res2.Total)

	// Example 3: paging 100 items sharing a key, sorted by primary key.
	fmt.Println("Example 3: Paging")
	fmt.Println("------------------")

	pageEngine := wahindex.NewEngine[product, int](false)
	colorCatalog2, err := wahindex.AddCatalog[product, int, string](pageEngine, "color", wahindex.CompressionCompressed, true)
	must(err)
	for i := 1; i <= 100; i++ {
		i := i
		must(pageEngine.Add(product{id: i, color: "red"}, i, func(item product, pos uint64) error {
			return colorCatalog2.Set(item.color, pos, true)
		}))
	}
	q3 := pageEngine.CreateQuery()
	must(q3.Filter(wahindex.Leaf(wahindex.Exact("color", "red"))))
	must(q3.SortByPrimaryKey(true))
	res3, err := q3.Execute(context.Background(), 40, 10)
	must(err)
	fmt.Printf("skip=40 take=10: %v, total: %d\n\n", res3.PrimaryKeys, res3.Total)

	// Aside: a bloom filter answers "might this key exist" approximately,
	// in constant space regardless of corpus size; the engine above
	// answers "which items exactly" by scanning a compressed bitmap. The
	// two are complementary, not substitutes — shown here for contrast.
	fmt.Println("Aside: approximate membership vs. exact index")
	fmt.Println("----------------------------------------------")
	approx := willf_bf.NewWithEstimates(1000, 0.01)
	approx.Add([]byte("red"))
	approx.Add([]byte("blue"))
	fmt.Printf("bloom might-contain 'red': %t\n", approx.Test([]byte("red")))
	fmt.Printf("bloom might-contain 'purple': %t\n", approx.Test([]byte("purple")))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
