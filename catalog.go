package wahindex

import (
	"cmp"
	"context"
	"iter"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

type entryState int

const (
	entryIdle entryState = iota
	entryReady
	entryDead
)

// catalogEntry pairs a live vector with the scratch state used across the
// two phases of compaction.
type catalogEntry struct {
	vector          *Vector
	vectorOptimized *Vector
	state           entryState
}

// Catalog is a per-attribute inverted index: an ordered set of distinct key
// values, each mapped to a Vector of the bit positions carrying that value.
// The ordered key slice supports range filters and ascending/descending
// sort enumeration without re-sorting on every call.
type Catalog[K cmp.Ordered] struct {
	name        string
	allowUnsafe bool
	compression Compression
	oneToOne    bool
	keys        []K
	entries     map[K]*catalogEntry
}

func newCatalog[K cmp.Ordered](name string, compression Compression, oneToOne bool, allowUnsafe bool) *Catalog[K] {
	return &Catalog[K]{
		name:        name,
		allowUnsafe: allowUnsafe,
		compression: compression,
		oneToOne:    oneToOne,
		entries:     make(map[K]*catalogEntry),
	}
}

// Name returns the catalog's registered name.
func (c *Catalog[K]) Name() string { return c.name }

// OneToOne reports whether at most one filter on this catalog is allowed
// per query.
func (c *Catalog[K]) OneToOne() bool { return c.oneToOne }

func (c *Catalog[K]) indexOf(key K) (int, bool) {
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] >= key })
	if i < len(c.keys) && c.keys[i] == key {
		return i, true
	}
	return i, false
}

func (c *Catalog[K]) entryFor(key K) (*catalogEntry, error) {
	idx, found := c.indexOf(key)
	if found {
		return c.entries[key], nil
	}
	v, err := NewVector(c.compression, c.allowUnsafe)
	if err != nil {
		return nil, err
	}
	c.keys = append(c.keys, key)
	copy(c.keys[idx+1:], c.keys[idx:len(c.keys)-1])
	c.keys[idx] = key
	e := &catalogEntry{vector: v}
	c.entries[key] = e
	return e, nil
}

// Set records bit pos under key, creating the entry and key slot on first
// sight of key.
func (c *Catalog[K]) Set(key K, pos uint64, value bool) error {
	e, err := c.entryFor(key)
	if err != nil {
		return err
	}
	return e.vector.SetBit(pos, value)
}

// SetKeys applies Set for every key in keys.
func (c *Catalog[K]) SetKeys(keys []K, pos uint64, value bool) error {
	for _, k := range keys {
		if err := c.Set(k, pos, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog[K]) clearInto(v *Vector) error {
	empty, err := NewVector(CompressionNone, v.allowUnsafe)
	if err != nil {
		return err
	}
	return v.AndInPlace(empty)
}

// Filter AND-intersects v in place with the entry vector for key. A
// missing key clears v.
func (c *Catalog[K]) Filter(v *Vector, key K) error {
	if _, found := c.indexOf(key); !found {
		return c.clearInto(v)
	}
	return v.AndInPlace(c.entries[key].vector)
}

// FilterKeys deduplicates keys, unions the matching entries out of place,
// and AND-intersects the union into v. Keys with no entry are skipped; if
// none match, v is cleared.
func (c *Catalog[K]) FilterKeys(v *Vector, keys []K) error {
	seen := make(map[K]struct{}, len(keys))
	var matched []*Vector
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, found := c.indexOf(k); !found {
			continue
		}
		matched = append(matched, c.entries[k].vector)
	}
	return c.andUnion(v, matched)
}

// FilterRange AND-intersects v with the union of every entry whose key
// falls in [min, max]. At least one bound must be non-nil; if both are set,
// min must not exceed max. A missing bound defaults to the ordered key
// set's minimum or maximum.
func (c *Catalog[K]) FilterRange(v *Vector, min, max *K) error {
	if min == nil && max == nil {
		return ErrArgumentRequired
	}
	if min != nil && max != nil && *max < *min {
		return ErrArgumentOutOfRange
	}
	lo := 0
	if min != nil {
		lo, _ = c.indexOf(*min)
	}
	hi := len(c.keys)
	if max != nil {
		idx, found := c.indexOf(*max)
		if found {
			hi = idx + 1
		} else {
			hi = idx
		}
	}
	var matched []*Vector
	for i := lo; i < hi && i < len(c.keys); i++ {
		matched = append(matched, c.entries[c.keys[i]].vector)
	}
	return c.andUnion(v, matched)
}

func (c *Catalog[K]) andUnion(v *Vector, matched []*Vector) error {
	switch len(matched) {
	case 0:
		return c.clearInto(v)
	case 1:
		return v.AndInPlace(matched[0])
	default:
		union, err := OrOutOfPlace(matched...)
		if err != nil {
			return err
		}
		return v.AndInPlace(union)
	}
}

func facetCount(v, entryVec *Vector, shortCircuit bool) (uint64, error) {
	if shortCircuit {
		any, err := v.AndPopulationAny(entryVec)
		if err != nil {
			return 0, err
		}
		if any {
			return 1, nil
		}
		return 0, nil
	}
	return v.AndPopulation(entryVec)
}

// Facet computes, for every key, population(AND(v, entries[key].vector)),
// returning only keys with a non-zero count. short_circuit_counting
// collapses any non-zero count to 1. Runs in parallel unless
// disableParallel is set.
func (c *Catalog[K]) Facet(ctx context.Context, v *Vector, disableParallel, shortCircuitCounting bool) (map[K]uint64, error) {
	out := make(map[K]uint64)
	if disableParallel || len(c.keys) <= 1 {
		for _, k := range c.keys {
			n, err := facetCount(v, c.entries[k].vector, shortCircuitCounting)
			if err != nil {
				return nil, err
			}
			if n > 0 {
				out[k] = n
			}
		}
		return out, nil
	}

	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	for _, k := range c.keys {
		k := k
		e := c.entries[k]
		g.Go(func() error {
			n, err := facetCount(v, e.vector, shortCircuitCounting)
			if err != nil {
				return err
			}
			if n > 0 {
				mu.Lock()
				out[k] = n
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SortGroups yields, in ascending or descending key order, every key whose
// AND with v is non-empty together with that intersection vector. Keys
// with an empty AND are skipped.
func (c *Catalog[K]) SortGroups(v *Vector, ascending bool) iter.Seq2[K, *Vector] {
	return func(yield func(K, *Vector) bool) {
		n := len(c.keys)
		for i := 0; i < n; i++ {
			idx := i
			if !ascending {
				idx = n - 1 - i
			}
			key := c.keys[idx]
			and, err := v.AndOutOfPlace(c.entries[key].vector, CompressionNone)
			if err != nil || !and.PopulationAny() {
				continue
			}
			if !yield(key, and) {
				return
			}
		}
	}
}

// OptimizeReadPhase runs Vector.OptimizeReadPhase on every entry, recording
// the result as scratch state without mutating the live vector.
func (c *Catalog[K]) OptimizeReadPhase(shifts []int64) error {
	for _, k := range c.keys {
		e := c.entries[k]
		nonEmpty, nv, err := e.vector.OptimizeReadPhase(shifts)
		if err != nil {
			return err
		}
		if nonEmpty {
			e.vectorOptimized = nv
			e.state = entryReady
		} else {
			e.state = entryDead
		}
	}
	return nil
}

// OptimizeWritePhase installs the scratch vector into every surviving
// entry and drops dead entries and their keys.
func (c *Catalog[K]) OptimizeWritePhase() {
	survivors := c.keys[:0]
	for _, k := range c.keys {
		e := c.entries[k]
		switch e.state {
		case entryReady:
			e.vector = e.vectorOptimized
			e.vectorOptimized = nil
			e.state = entryIdle
			survivors = append(survivors, k)
		case entryDead:
			delete(c.entries, k)
		default:
			survivors = append(survivors, k)
		}
	}
	c.keys = survivors
}
