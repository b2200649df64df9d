package wahindex

import (
	"cmp"
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

// catalogBinding is the capability an Engine holds for a catalog once its
// key type K is erased behind its registered name — a registered
// create-filter/facet/sort-from-dynamic-value capability in place of a
// runtime type cast.
type catalogBinding interface {
	Name() string
	OneToOne() bool
	filterExact(v *Vector, value any) error
	filterEnumerable(v *Vector, values []any) error
	filterRange(v *Vector, min, max any) error
	facet(ctx context.Context, v *Vector, disableParallel, shortCircuit bool) (map[any]uint64, error)
	sortGroups(v *Vector, ascending bool) iter.Seq2[any, *Vector]
	optimizeReadPhase(shifts []int64) error
	optimizeWritePhase()
}

type catalogHandle[K cmp.Ordered] struct {
	cat *Catalog[K]
}

func (h *catalogHandle[K]) Name() string    { return h.cat.Name() }
func (h *catalogHandle[K]) OneToOne() bool  { return h.cat.OneToOne() }

func (h *catalogHandle[K]) filterExact(v *Vector, value any) error {
	k, ok := value.(K)
	if !ok {
		return ErrArgumentOutOfRange
	}
	return h.cat.Filter(v, k)
}

func (h *catalogHandle[K]) filterEnumerable(v *Vector, values []any) error {
	keys := make([]K, 0, len(values))
	for _, val := range values {
		k, ok := val.(K)
		if !ok {
			return ErrArgumentOutOfRange
		}
		keys = append(keys, k)
	}
	return h.cat.FilterKeys(v, keys)
}

func (h *catalogHandle[K]) filterRange(v *Vector, min, max any) error {
	var lo, hi *K
	if min != nil {
		k, ok := min.(K)
		if !ok {
			return ErrArgumentOutOfRange
		}
		lo = &k
	}
	if max != nil {
		k, ok := max.(K)
		if !ok {
			return ErrArgumentOutOfRange
		}
		hi = &k
	}
	return h.cat.FilterRange(v, lo, hi)
}

func (h *catalogHandle[K]) facet(ctx context.Context, v *Vector, disableParallel, shortCircuit bool) (map[any]uint64, error) {
	res, err := h.cat.Facet(ctx, v, disableParallel, shortCircuit)
	if err != nil {
		return nil, err
	}
	out := make(map[any]uint64, len(res))
	for k, n := range res {
		out[k] = n
	}
	return out, nil
}

func (h *catalogHandle[K]) sortGroups(v *Vector, ascending bool) iter.Seq2[any, *Vector] {
	return func(yield func(any, *Vector) bool) {
		for k, gv := range h.cat.SortGroups(v, ascending) {
			if !yield(k, gv) {
				return
			}
		}
	}
}

func (h *catalogHandle[K]) optimizeReadPhase(shifts []int64) error {
	return h.cat.OptimizeReadPhase(shifts)
}

func (h *catalogHandle[K]) optimizeWritePhase() {
	h.cat.OptimizeWritePhase()
}

// Engine aggregates catalogs keyed by name, maps primary keys to dense bit
// positions, and executes compound Boolean queries against them. Bit
// positions are assigned monotonically and reclaimed only by Compact.
type Engine[Item any, PK cmp.Ordered] struct {
	allowUnsafe bool

	catalogsByName map[string]catalogBinding
	catalogOrder   []string

	primaryKeyToBitPos map[PK]uint64
	bitPosToPrimaryKey []*PK
	nextBitPosition    uint64

	activeItemCount uint64
	deletionCount   uint64
}

// NewEngine creates an empty Engine. allowUnsafe selects the pointer-
// arithmetic kernel set for every vector the engine subsequently creates.
func NewEngine[Item any, PK cmp.Ordered](allowUnsafe bool) *Engine[Item, PK] {
	return &Engine[Item, PK]{
		allowUnsafe:        allowUnsafe,
		catalogsByName:     make(map[string]catalogBinding),
		primaryKeyToBitPos: make(map[PK]uint64),
	}
}

// AddCatalog registers a new catalog by name. A method cannot introduce a
// type parameter beyond its receiver's, so the catalog's own key type K is
// supplied here as a function type parameter instead of on Engine itself.
func AddCatalog[Item any, PK cmp.Ordered, K cmp.Ordered](e *Engine[Item, PK], name string, compression Compression, oneToOne bool) (*Catalog[K], error) {
	if name == "" {
		return nil, ErrArgumentRequired
	}
	if _, exists := e.catalogsByName[name]; exists {
		return nil, ErrDuplicateParameter
	}
	cat := newCatalog[K](name, compression, oneToOne, e.allowUnsafe)
	e.catalogsByName[name] = &catalogHandle[K]{cat: cat}
	e.catalogOrder = append(e.catalogOrder, name)
	return cat, nil
}

// Add allocates the next bit position for item, invokes extractor to set
// every catalog's bits at that position, and records the primary-key
// mapping. extractor is expected to close over the typed *Catalog[K]
// handles the caller received from AddCatalog.
func (e *Engine[Item, PK]) Add(item Item, primaryKey PK, extractor func(item Item, pos uint64) error) error {
	if _, exists := e.primaryKeyToBitPos[primaryKey]; exists {
		return ErrDuplicateParameter
	}
	pos := e.nextBitPosition
	if err := extractor(item, pos); err != nil {
		return err
	}
	e.nextBitPosition++
	e.primaryKeyToBitPos[primaryKey] = pos
	pk := primaryKey
	e.bitPosToPrimaryKey = append(e.bitPosToPrimaryKey, &pk)
	e.activeItemCount++
	return nil
}

// Remove tombstones primaryKey's bit position. Catalog vectors are left
// untouched until Compact.
func (e *Engine[Item, PK]) Remove(primaryKey PK) error {
	pos, ok := e.primaryKeyToBitPos[primaryKey]
	if !ok {
		return ErrArgumentOutOfRange
	}
	delete(e.primaryKeyToBitPos, primaryKey)
	e.bitPosToPrimaryKey[pos] = nil
	e.deletionCount++
	e.activeItemCount--
	return nil
}

// ActiveItemCount returns the number of items added but not removed.
func (e *Engine[Item, PK]) ActiveItemCount() uint64 { return e.activeItemCount }

// DeletionCount returns the number of tombstones accumulated since the
// last Compact.
func (e *Engine[Item, PK]) DeletionCount() uint64 { return e.deletionCount }

// Compact rebuilds the bit-position space: phase one computes a shift
// table and optimizes every catalog's vectors in parallel (read-only
// against the originals); phase two commits the optimized vectors and
// rewrites the primary-key tables serially.
func (e *Engine[Item, PK]) Compact(ctx context.Context) error {
	n := int(e.nextBitPosition)
	shifts := make([]int64, n)
	var tombstones int64
	for p := 0; p < n; p++ {
		if e.bitPosToPrimaryKey[p] == nil {
			shifts[p] = -1
			tombstones++
			continue
		}
		shifts[p] = tombstones
	}

	g, _ := errgroup.WithContext(ctx)
	for _, name := range e.catalogOrder {
		binding := e.catalogsByName[name]
		g.Go(func() error {
			return binding.optimizeReadPhase(shifts)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, name := range e.catalogOrder {
		e.catalogsByName[name].optimizeWritePhase()
	}

	newBitPosToPK := make([]*PK, 0, n-int(tombstones))
	newPKToBitPos := make(map[PK]uint64, len(e.primaryKeyToBitPos))
	for p := 0; p < n; p++ {
		pk := e.bitPosToPrimaryKey[p]
		if pk == nil {
			continue
		}
		newBitPosToPK = append(newBitPosToPK, pk)
		newPKToBitPos[*pk] = uint64(len(newBitPosToPK) - 1)
	}
	e.bitPosToPrimaryKey = newBitPosToPK
	e.primaryKeyToBitPos = newPKToBitPos
	e.nextBitPosition = uint64(len(newBitPosToPK))
	e.deletionCount = 0
	return nil
}

// universe returns a fresh, uncompressed vector with every currently
// allocated bit position set.
func (e *Engine[Item, PK]) universe() (*Vector, error) {
	v, err := NewVector(CompressionNone, e.allowUnsafe)
	if err != nil {
		return nil, err
	}
	for p := uint64(0); p < e.nextBitPosition; p++ {
		if err := v.SetBit(p, true); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *Engine[Item, PK]) evaluate(clause FilterClause) (*Vector, error) {
	switch clause.op {
	case clauseLeaf:
		return e.evalLeaf(clause.param)
	case clauseAnd:
		if len(clause.children) == 0 {
			return e.universe()
		}
		result, err := e.evaluate(clause.children[0])
		if err != nil {
			return nil, err
		}
		for _, child := range clause.children[1:] {
			cv, err := e.evaluate(child)
			if err != nil {
				return nil, err
			}
			if err := result.AndInPlace(cv); err != nil {
				return nil, err
			}
		}
		return result, nil
	case clauseOr:
		if len(clause.children) == 0 {
			return NewVector(CompressionNone, e.allowUnsafe)
		}
		vectors := make([]*Vector, len(clause.children))
		for i, child := range clause.children {
			cv, err := e.evaluate(child)
			if err != nil {
				return nil, err
			}
			vectors[i] = cv
		}
		if len(vectors) == 1 {
			return vectors[0], nil
		}
		return OrOutOfPlace(vectors...)
	case clauseNot:
		cv, err := e.evaluate(clause.children[0])
		if err != nil {
			return nil, err
		}
		universe, err := e.universe()
		if err != nil {
			return nil, err
		}
		positions, err := cv.GetBitPositions(true)
		if err != nil {
			return nil, err
		}
		for p := range positions {
			if err := universe.SetBit(p, false); err != nil {
				return nil, err
			}
		}
		return universe, nil
	default:
		return nil, ErrUnsupportedOperation
	}
}

func (e *Engine[Item, PK]) evalLeaf(param FilterParameter) (*Vector, error) {
	binding, ok := e.catalogsByName[param.catalog]
	if !ok {
		return nil, ErrCatalogMismatch
	}
	v, err := e.universe()
	if err != nil {
		return nil, err
	}
	switch param.kind {
	case filterExactKind:
		err = binding.filterExact(v, param.exact)
	case filterEnumerableKind:
		err = binding.filterEnumerable(v, param.many)
	case filterRangeKind:
		err = binding.filterRange(v, param.min, param.max)
	default:
		return nil, ErrUnsupportedOperation
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// sortStream composes sorts[idx:] left to right as a Cartesian product:
// for each surviving key group at this level, recurse into the next sort
// level, falling back to the group's own ascending bit-position order once
// every sort level is consumed.
func (e *Engine[Item, PK]) sortStream(candidate *Vector, sorts []sortParam, idx int) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		if idx >= len(sorts) {
			positions, err := candidate.GetBitPositions(true)
			if err != nil {
				return
			}
			for p := range positions {
				if !yield(p) {
					return
				}
			}
			return
		}
		sp := sorts[idx]
		binding, ok := e.catalogsByName[sp.catalog]
		if !ok {
			return
		}
		for _, group := range binding.sortGroups(candidate, sp.ascending) {
			stop := false
			for p := range e.sortStream(group, sorts, idx+1) {
				if !yield(p) {
					stop = true
					break
				}
			}
			if stop {
				return
			}
		}
	}
}
