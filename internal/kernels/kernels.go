// Package kernels implements the low-level word-array operations that back
// wahindex.Vector: decompression, in-place and out-of-place AND/OR, and
// population counts. Kernels are specialized by (left form, right form) to
// avoid per-word branching in the hot loop, mirroring the shape of a
// SIMD-dispatch layer without depending on any particular CPU feature set.
//
// The package operates on plain []uint32 rather than wahindex.Word so that
// it has no dependency on the root package (the root package depends on
// kernels, not the other way around); the bit layout duplicated here must
// stay in lock-step with word.go.
package kernels

const (
	literalBits   = 31
	literalMask   = uint32(1<<literalBits) - 1
	compressedBit = uint32(1) << 31
	fillValueBit  = uint32(1) << 30
	packedShift   = 25
	packedBits    = 5
	packedMask    = uint32((1<<packedBits)-1) << packedShift
	fillCountMask = uint32(1<<packedShift) - 1

	fullLiteral = literalMask
)

// Set is the capability surface a Vector drives. Two implementations exist:
// a safe, array-indexed one and an unsafe, pointer-arithmetic one; both must
// be observably identical for any input.
type Set interface {
	// DecompressInPlace expands a compressed source (src, srcPhysical words)
	// into a pre-sized literal destination (one entry per logical word).
	DecompressInPlace(dst []uint32, src []uint32)

	// AndInPlaceNN ANDs literal src into literal dst in place. Returns the
	// new physical/logical word counts after trailing zero words are
	// trimmed (AND may only clear bits).
	AndInPlaceNN(dst []uint32, src []uint32) (physical, logical int)

	// AndInPlaceNCWPP ANDs a compressed-with-optional-packed-position run
	// (src, representing srcLogical logical words) into literal dst.
	AndInPlaceNCWPP(dst []uint32, src []uint32, srcLogical int) (physical, logical int)

	// OrInPlaceNN ORs literal src into literal dst in place.
	OrInPlaceNN(dst []uint32, src []uint32)

	// OrInPlaceNCWPP ORs a compressed-with-optional-packed-position run into
	// literal dst, which must already be sized to at least srcLogical words.
	OrInPlaceNCWPP(dst []uint32, src []uint32, srcLogical int)

	// AndOutOfPlaceLL produces literal AND(a, b) into a freshly sized dst.
	AndOutOfPlaceLL(a, b []uint32) []uint32

	// AndOutOfPlaceLC produces literal AND(literal a, compressed b).
	AndOutOfPlaceLC(a []uint32, b []uint32, bLogical int) []uint32

	// AndOutOfPlaceCC produces literal AND(compressed a, compressed b) by
	// decompressing both; compressed/compressed AND is otherwise
	// unsupported for population (see AndPopulationNN).
	AndOutOfPlaceCC(a []uint32, aLogical int, b []uint32, bLogical int) []uint32

	// AndPopulationNN returns population(AND(a, b)) without materializing
	// the intersection, for two literal operands.
	AndPopulationNN(a, b []uint32) uint64

	// AndPopulationNCWPP returns population(AND(literal, compressed)).
	AndPopulationNCWPP(lit []uint32, run []uint32) uint64

	// AndPopulationAnyNN short-circuits as soon as any overlapping bit is
	// found between two literal operands.
	AndPopulationAnyNN(a, b []uint32) bool

	// AndPopulationAnyNCWPP short-circuits as soon as any overlapping bit is
	// found between a literal and a compressed-with-packed operand.
	AndPopulationAnyNCWPP(lit []uint32, run []uint32) bool

	// PopCount returns the logical population of a run of literal words.
	PopCount(words []uint32) uint64
}

func isCompressed(w uint32) bool { return w&compressedBit != 0 }
func fillBit(w uint32) bool      { return w&fillValueBit != 0 }
func fillCount(w uint32) uint32  { return w & fillCountMask }
func hasPacked(w uint32) bool    { return w&packedMask != 0 }
func packedPosition(w uint32) uint32 {
	return (w & packedMask) >> packedShift
}
func packedLiteral(w uint32) uint32 {
	return uint32(1) << (packedPosition(w) - 1)
}

// decompressRuns expands a compressed word array (src) into a literal word
// array (dst, one entry per logical word). Shared by both kernel variants.
func decompressRuns(dst []uint32, src []uint32) {
	cursor := 0
	for _, w := range src {
		if !isCompressed(w) {
			dst[cursor] = w
			cursor++
			continue
		}
		n := int(fillCount(w))
		if fillBit(w) {
			for i := 0; i < n; i++ {
				dst[cursor] = fullLiteral
				cursor++
			}
		} else {
			for i := 0; i < n; i++ {
				dst[cursor] = 0
				cursor++
			}
		}
		if hasPacked(w) {
			dst[cursor] = packedLiteral(w)
			cursor++
		}
	}
}

// runPopulation returns the logical population represented by a single
// compressed run word.
func runPopulation(w uint32) uint64 {
	var n uint64
	if fillBit(w) {
		n = uint64(literalBits) * uint64(fillCount(w))
	}
	if hasPacked(w) {
		n++
	}
	return n
}
