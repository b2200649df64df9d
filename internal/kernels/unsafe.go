package kernels

import (
	"math/bits"
	"unsafe"
)

// unsafeSet is the pointer-arithmetic kernel implementation: it walks the
// same backing arrays as safeSet via unsafe.Pointer/unsafe.Add instead of
// slice indexing, trading a bounds-check per word for a raw pointer bump.
// It must be observably identical to safeSet for every input; see
// kernels_test.go.
type unsafeSet struct{}

// Unsafe is the pointer-arithmetic kernel implementation. It is always
// compiled in for this module (plain unsafe.Pointer arithmetic needs no
// architecture-specific assembly), but is gated behind Vector's
// allowUnsafe flag so callers opt in explicitly.
var Unsafe Set = unsafeSet{}

const wordSize = unsafe.Sizeof(uint32(0))

func at(base unsafe.Pointer, i int) *uint32 {
	return (*uint32)(unsafe.Add(base, uintptr(i)*wordSize))
}

func basePtr(s []uint32) unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(&s[0])
}

func (unsafeSet) DecompressInPlace(dst []uint32, src []uint32) {
	if len(src) == 0 {
		return
	}
	dbase := basePtr(dst)
	sbase := basePtr(src)
	cursor := 0
	for i := 0; i < len(src); i++ {
		w := *at(sbase, i)
		if !isCompressed(w) {
			*at(dbase, cursor) = w
			cursor++
			continue
		}
		n := int(fillCount(w))
		if fillBit(w) {
			for j := 0; j < n; j++ {
				*at(dbase, cursor) = fullLiteral
				cursor++
			}
		} else {
			for j := 0; j < n; j++ {
				*at(dbase, cursor) = 0
				cursor++
			}
		}
		if hasPacked(w) {
			*at(dbase, cursor) = packedLiteral(w)
			cursor++
		}
	}
}

func (unsafeSet) AndInPlaceNN(dst []uint32, src []uint32) (physical, logical int) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	dbase := basePtr(dst)
	sbase := basePtr(src)
	for i := 0; i < n; i++ {
		dp := at(dbase, i)
		*dp &= *at(sbase, i)
	}
	for i := n; i < len(dst); i++ {
		*at(dbase, i) = 0
	}
	return trimTrailingZeros(dst)
}

func (unsafeSet) AndInPlaceNCWPP(dst []uint32, src []uint32, srcLogical int) (physical, logical int) {
	lit := make([]uint32, srcLogical)
	Unsafe.DecompressInPlace(lit, src)
	return Unsafe.AndInPlaceNN(dst, lit)
}

func (unsafeSet) OrInPlaceNN(dst []uint32, src []uint32) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	dbase := basePtr(dst)
	sbase := basePtr(src)
	for i := 0; i < n; i++ {
		dp := at(dbase, i)
		*dp |= *at(sbase, i)
	}
}

func (unsafeSet) OrInPlaceNCWPP(dst []uint32, src []uint32, srcLogical int) {
	lit := make([]uint32, srcLogical)
	Unsafe.DecompressInPlace(lit, src)
	Unsafe.OrInPlaceNN(dst, lit)
}

func (unsafeSet) AndOutOfPlaceLL(a, b []uint32) []uint32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]uint32, n)
	abase, bbase, obase := basePtr(a), basePtr(b), basePtr(out)
	for i := 0; i < n; i++ {
		*at(obase, i) = *at(abase, i) & *at(bbase, i)
	}
	return out
}

func (unsafeSet) AndOutOfPlaceLC(a []uint32, b []uint32, bLogical int) []uint32 {
	litB := make([]uint32, bLogical)
	Unsafe.DecompressInPlace(litB, b)
	return Unsafe.AndOutOfPlaceLL(a, litB)
}

func (unsafeSet) AndOutOfPlaceCC(a []uint32, aLogical int, b []uint32, bLogical int) []uint32 {
	litA := make([]uint32, aLogical)
	Unsafe.DecompressInPlace(litA, a)
	litB := make([]uint32, bLogical)
	Unsafe.DecompressInPlace(litB, b)
	return Unsafe.AndOutOfPlaceLL(litA, litB)
}

func (unsafeSet) AndPopulationNN(a, b []uint32) uint64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	abase, bbase := basePtr(a), basePtr(b)
	var total uint64
	for i := 0; i < n; i++ {
		total += uint64(bits.OnesCount32(*at(abase, i) & *at(bbase, i)))
	}
	return total
}

func (unsafeSet) AndPopulationNCWPP(lit []uint32, run []uint32) uint64 {
	lbase := basePtr(lit)
	var total uint64
	cursor := 0
	for _, w := range run {
		if !isCompressed(w) {
			if cursor < len(lit) {
				total += uint64(bits.OnesCount32(*at(lbase, cursor) & w))
			}
			cursor++
			continue
		}
		n := int(fillCount(w))
		if fillBit(w) {
			for i := 0; i < n && cursor < len(lit); i++ {
				total += uint64(bits.OnesCount32(*at(lbase, cursor) & fullLiteral))
				cursor++
			}
		} else {
			cursor += n
		}
		if hasPacked(w) {
			if cursor < len(lit) {
				total += uint64(bits.OnesCount32(*at(lbase, cursor) & packedLiteral(w)))
			}
			cursor++
		}
	}
	return total
}

func (unsafeSet) AndPopulationAnyNN(a, b []uint32) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	abase, bbase := basePtr(a), basePtr(b)
	for i := 0; i < n; i++ {
		if *at(abase, i)&*at(bbase, i) != 0 {
			return true
		}
	}
	return false
}

func (unsafeSet) AndPopulationAnyNCWPP(lit []uint32, run []uint32) bool {
	lbase := basePtr(lit)
	cursor := 0
	for _, w := range run {
		if !isCompressed(w) {
			if cursor < len(lit) && *at(lbase, cursor)&w != 0 {
				return true
			}
			cursor++
			continue
		}
		n := int(fillCount(w))
		if fillBit(w) {
			for i := 0; i < n && cursor < len(lit); i++ {
				if *at(lbase, cursor)&fullLiteral != 0 {
					return true
				}
				cursor++
			}
		} else {
			cursor += n
		}
		if hasPacked(w) {
			if cursor < len(lit) && *at(lbase, cursor)&packedLiteral(w) != 0 {
				return true
			}
			cursor++
		}
	}
	return false
}

func (unsafeSet) PopCount(words []uint32) uint64 {
	if len(words) == 0 {
		return 0
	}
	base := basePtr(words)
	var total uint64
	for i := 0; i < len(words); i++ {
		total += uint64(bits.OnesCount32(*at(base, i)))
	}
	return total
}
