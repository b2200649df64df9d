package kernels

import "math/bits"

// safeSet is the array-indexed kernel implementation: no unsafe, no
// assumptions about memory layout beyond what the language guarantees.
type safeSet struct{}

// Safe is the always-available, bounds-checked kernel implementation.
var Safe Set = safeSet{}

func (safeSet) DecompressInPlace(dst []uint32, src []uint32) {
	decompressRuns(dst, src)
}

func trimTrailingZeros(words []uint32) (physical, logical int) {
	n := len(words)
	for n > 1 && words[n-1] == 0 {
		n--
	}
	return n, n
}

func (safeSet) AndInPlaceNN(dst []uint32, src []uint32) (physical, logical int) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] &= src[i]
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return trimTrailingZeros(dst)
}

func (safeSet) AndInPlaceNCWPP(dst []uint32, src []uint32, srcLogical int) (physical, logical int) {
	lit := make([]uint32, srcLogical)
	decompressRuns(lit, src)
	n := len(dst)
	if len(lit) < n {
		n = len(lit)
	}
	for i := 0; i < n; i++ {
		dst[i] &= lit[i]
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return trimTrailingZeros(dst)
}

func (safeSet) OrInPlaceNN(dst []uint32, src []uint32) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] |= src[i]
	}
}

func (safeSet) OrInPlaceNCWPP(dst []uint32, src []uint32, srcLogical int) {
	lit := make([]uint32, srcLogical)
	decompressRuns(lit, src)
	for i := 0; i < len(lit); i++ {
		dst[i] |= lit[i]
	}
}

func (safeSet) AndOutOfPlaceLL(a, b []uint32) []uint32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] & b[i]
	}
	return out
}

func (safeSet) AndOutOfPlaceLC(a []uint32, b []uint32, bLogical int) []uint32 {
	litB := make([]uint32, bLogical)
	decompressRuns(litB, b)
	n := len(a)
	if len(litB) < n {
		n = len(litB)
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] & litB[i]
	}
	return out
}

func (safeSet) AndOutOfPlaceCC(a []uint32, aLogical int, b []uint32, bLogical int) []uint32 {
	litA := make([]uint32, aLogical)
	decompressRuns(litA, a)
	litB := make([]uint32, bLogical)
	decompressRuns(litB, b)
	n := len(litA)
	if len(litB) < n {
		n = len(litB)
	}
	out := make([]uint32, n)
	for i := 0; i < n; i++ {
		out[i] = litA[i] & litB[i]
	}
	return out
}

func (safeSet) AndPopulationNN(a, b []uint32) uint64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var total uint64
	for i := 0; i < n; i++ {
		total += uint64(bits.OnesCount32(a[i] & b[i]))
	}
	return total
}

func (safeSet) AndPopulationNCWPP(lit []uint32, run []uint32) uint64 {
	var total uint64
	cursor := 0
	for _, w := range run {
		if !isCompressed(w) {
			if cursor < len(lit) {
				total += uint64(bits.OnesCount32(lit[cursor] & w))
			}
			cursor++
			continue
		}
		n := int(fillCount(w))
		if fillBit(w) {
			for i := 0; i < n && cursor < len(lit); i++ {
				total += uint64(bits.OnesCount32(lit[cursor] & fullLiteral))
				cursor++
			}
		} else {
			cursor += n
		}
		if hasPacked(w) {
			if cursor < len(lit) {
				total += uint64(bits.OnesCount32(lit[cursor] & packedLiteral(w)))
			}
			cursor++
		}
	}
	return total
}

func (safeSet) AndPopulationAnyNN(a, b []uint32) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i]&b[i] != 0 {
			return true
		}
	}
	return false
}

func (safeSet) AndPopulationAnyNCWPP(lit []uint32, run []uint32) bool {
	cursor := 0
	for _, w := range run {
		if !isCompressed(w) {
			if cursor < len(lit) && lit[cursor]&w != 0 {
				return true
			}
			cursor++
			continue
		}
		n := int(fillCount(w))
		if fillBit(w) {
			for i := 0; i < n && cursor < len(lit); i++ {
				if lit[cursor]&fullLiteral != 0 {
					return true
				}
				cursor++
			}
		} else {
			cursor += n
		}
		if hasPacked(w) {
			if cursor < len(lit) && lit[cursor]&packedLiteral(w) != 0 {
				return true
			}
			cursor++
		}
	}
	return false
}

func (safeSet) PopCount(words []uint32) uint64 {
	var total uint64
	for _, w := range words {
		total += uint64(bits.OnesCount32(w))
	}
	return total
}
