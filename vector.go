package wahindex

import (
	"encoding/binary"
	"iter"

	"github.com/shaia/wahindex/internal/kernels"
	"github.com/zeebo/xxh3"
)

// Compression selects how a Vector's tail folds repeated words into runs.
type Compression int

const (
	// CompressionNone never folds words; every logical word is a literal.
	CompressionNone Compression = iota
	// CompressionCompressed folds uniform runs of 31-bit words into a single
	// compressed Word.
	CompressionCompressed
	// CompressionPackedPosition additionally recognizes a single set bit
	// immediately following a run and packs it into the run's spare bits.
	CompressionPackedPosition
)

// Vector is a logical, append-biased bitmap: a growable array of Word
// backed by []uint32, optionally WAH-compressed. The last physical word is
// always a literal (the LAW). Writes at a logical position before the
// current tail are rejected once the vector is compressed (forward-only);
// an uncompressed (CompressionNone) vector allows random-position writes.
type Vector struct {
	words             []uint32
	wordCountPhysical int
	wordCountLogical  int
	compression       Compression
	allowUnsafe       bool
	kernels           kernels.Set
}

// NewVector creates an empty vector (a single literal zero word) in the
// given compression mode. allowUnsafe selects the pointer-arithmetic kernel
// set; it returns ErrUnsafeUnavailable if that kernel set is not present in
// this build.
//
// compression must be one of the CompressionNone/CompressionCompressed/
// CompressionPackedPosition constants. An out-of-range value is a
// programming error, not a caller-data error, and panics immediately rather
// than surfacing as a runtime fault deep inside the zero-fill path.
func NewVector(compression Compression, allowUnsafe bool) (*Vector, error) {
	if compression < CompressionNone || compression > CompressionPackedPosition {
		panic("wahindex: compression must be CompressionNone, CompressionCompressed, or CompressionPackedPosition")
	}
	k, err := kernels.Get(allowUnsafe)
	if err != nil {
		return nil, ErrUnsafeUnavailable
	}
	return &Vector{
		words:             []uint32{0},
		wordCountPhysical:  1,
		wordCountLogical:   1,
		compression:        compression,
		allowUnsafe:        allowUnsafe,
		kernels:            k,
	}, nil
}

// HasUnsafeKernels reports whether this build carries the pointer-
// arithmetic kernel set, for callers deciding whether to request
// allowUnsafe.
func HasUnsafeKernels() bool {
	return kernels.HasUnsafe()
}

// Compression returns the vector's fixed compression mode.
func (v *Vector) Compression() Compression { return v.compression }

// WordCountPhysical returns the number of physical Words currently in use.
func (v *Vector) WordCountPhysical() int { return v.wordCountPhysical }

// WordCountLogical returns the number of 31-bit logical words the vector
// currently represents (including fills and packed positions).
func (v *Vector) WordCountLogical() int { return v.wordCountLogical }

func growLen(current, requested int) int {
	grown := int(float64(current) * 1.1)
	if grown < 2 {
		grown = 2
	}
	if requested > grown {
		return requested
	}
	return grown
}

func (v *Vector) ensurePhysicalCapacity(n int) {
	if n <= len(v.words) {
		return
	}
	grown := make([]uint32, growLen(len(v.words), n))
	copy(grown, v.words)
	v.words = grown
}

// Clone returns a deep, independent copy of v.
func (v *Vector) Clone() *Vector {
	words := make([]uint32, v.wordCountPhysical)
	copy(words, v.words[:v.wordCountPhysical])
	return &Vector{
		words:             words,
		wordCountPhysical: v.wordCountPhysical,
		wordCountLogical:  v.wordCountLogical,
		compression:       v.compression,
		allowUnsafe:       v.allowUnsafe,
		kernels:           v.kernels,
	}
}

// Fingerprint returns a fast, non-cryptographic checksum over the vector's
// physical word array. Two vectors with the same Fingerprint are very
// likely bit-identical; it is meant for quick test assertions and debug
// tooling, not for correctness-critical comparisons.
func (v *Vector) Fingerprint() uint64 {
	buf := make([]byte, v.wordCountPhysical*4)
	for i := 0; i < v.wordCountPhysical; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], v.words[i])
	}
	return xxh3.Hash(buf)
}

// logicalWordAt returns the literal (bit31-clear) value of the logical word
// at logicalIdx, or 0 if logicalIdx is at or beyond the tail.
func (v *Vector) logicalWordAt(logicalIdx int) uint32 {
	if logicalIdx < 0 || logicalIdx >= v.wordCountLogical {
		return 0
	}
	cursor := 0
	for i := 0; i < v.wordCountPhysical; i++ {
		w := Word(v.words[i])
		if !w.IsCompressed() {
			if cursor == logicalIdx {
				return uint32(w)
			}
			cursor++
			continue
		}
		n := int(w.FillCount())
		if logicalIdx < cursor+n {
			if w.FillBit() {
				return uint32(literalMask)
			}
			return 0
		}
		cursor += n
		if w.HasPackedWord() {
			if cursor == logicalIdx {
				return uint32(w.PackedWord())
			}
			cursor++
		}
	}
	return 0
}

// GetBit returns the bit at pos. Reading past the tail returns false.
func (v *Vector) GetBit(pos uint64) bool {
	logicalIdx := int(pos / literalBits)
	bitIdx := uint32(pos % literalBits)
	w := v.logicalWordAt(logicalIdx)
	return w&(uint32(1)<<bitIdx) != 0
}

// GetWordLogical returns the literal value of the logical word at
// logicalPos. Reading past the tail returns the zero word.
func (v *Vector) GetWordLogical(logicalPos int) Word {
	return Word(v.logicalWordAt(logicalPos))
}

// SetBit sets (or clears) the bit at pos. Non-zero writes beyond the tail
// first zero-fill the gap; zero writes beyond the tail are a no-op.
// Returns ErrForwardOnlyViolation for a write strictly before the tail on a
// compressed vector.
func (v *Vector) SetBit(pos uint64, value bool) error {
	logicalIdx := int(pos / literalBits)
	bitIdx := uint32(pos % literalBits)
	tailLogicalIdx := v.wordCountLogical - 1

	if logicalIdx < tailLogicalIdx {
		if v.compression != CompressionNone {
			return ErrForwardOnlyViolation
		}
		w := Word(v.words[logicalIdx]).SetBit(bitIdx, value)
		v.words[logicalIdx] = uint32(w)
		return nil
	}

	if logicalIdx == tailLogicalIdx {
		i := v.wordCountPhysical - 1
		w := Word(v.words[i]).SetBit(bitIdx, value)
		v.words[i] = uint32(w)
		return nil
	}

	if !value {
		return nil
	}
	v.zeroFillTo(logicalIdx)
	i := v.wordCountPhysical - 1
	w := Word(v.words[i]).SetBit(bitIdx, true)
	v.words[i] = uint32(w)
	return nil
}

// SetWord replaces the logical word at logicalPos with w, forward-only on
// compressed vectors. If w is itself a compressed run, the LAW is
// re-established by appending a fresh literal zero tail.
func (v *Vector) SetWord(logicalPos int, w Word) error {
	tailLogicalIdx := v.wordCountLogical - 1

	if logicalPos < tailLogicalIdx {
		if v.compression != CompressionNone {
			return ErrForwardOnlyViolation
		}
		v.words[logicalPos] = uint32(w)
		return nil
	}

	if logicalPos > tailLogicalIdx {
		v.zeroFillTo(logicalPos)
	}

	v.words[v.wordCountPhysical-1] = uint32(w)
	runSpan := 1
	if w.IsCompressed() {
		runSpan = int(w.FillCount())
		if w.HasPackedWord() {
			runSpan++
		}
	}
	v.wordCountLogical = logicalPos + runSpan
	if w.IsCompressed() {
		v.appendFreshLiteralTail()
		v.wordCountLogical++
	}
	return nil
}

// zeroFillTo extends the vector so that logicalIdx becomes its new,
// currently-empty literal tail, folding the words in between into runs
// where the compression mode and content allow it.
func (v *Vector) zeroFillTo(logicalIdx int) {
	gap := logicalIdx - (v.wordCountLogical - 1)
	if gap <= 0 {
		return
	}
	if v.compression == CompressionNone {
		v.ensurePhysicalCapacity(v.wordCountPhysical + gap)
		for i := 0; i < gap; i++ {
			v.words[v.wordCountPhysical] = 0
			v.wordCountPhysical++
		}
		v.wordCountLogical = logicalIdx + 1
		return
	}
	v.closeTailAndFill(gap - 1)
	v.wordCountLogical = logicalIdx + 1
}

// closeTailAndFill folds the current literal tail into a preceding run when
// possible, represents zerosBetween new zero logical words as a (possibly
// coalesced) run, and appends a fresh literal zero tail.
func (v *Vector) closeTailAndFill(zerosBetween int) {
	tailIdx := v.wordCountPhysical - 1
	tail := Word(v.words[tailIdx])
	packedEnabled := v.compression == CompressionPackedPosition

	if packedEnabled && tail.Population() == 1 && tailIdx > 0 {
		prev := Word(v.words[tailIdx-1])
		if prev.IsCompressed() && !prev.FillBit() && !prev.HasPackedWord() {
			v.words[tailIdx-1] = uint32(prev.Pack(tail))
			v.wordCountPhysical--
			v.appendZeroRun(zerosBetween)
			v.appendFreshLiteralTail()
			return
		}
	}

	if tail.IsCompressible() {
		closed := tail.Compress()
		if tailIdx > 0 {
			prev := Word(v.words[tailIdx-1])
			if prev.IsCompressed() && !prev.HasPackedWord() && prev.FillBit() == closed.FillBit() {
				v.words[tailIdx-1] = uint32(newRun(prev.FillBit(), prev.FillCount()+closed.FillCount()))
				v.wordCountPhysical--
			} else {
				v.words[tailIdx] = uint32(closed)
			}
		} else {
			v.words[tailIdx] = uint32(closed)
		}
	}

	v.appendZeroRun(zerosBetween)
	v.appendFreshLiteralTail()
}

// appendZeroRun appends (or extends a trailing unpacked zero run with) n
// new zero logical words. A no-op for n <= 0.
func (v *Vector) appendZeroRun(n int) {
	if n <= 0 {
		return
	}
	if v.wordCountPhysical > 0 {
		last := Word(v.words[v.wordCountPhysical-1])
		if last.IsCompressed() && !last.FillBit() && !last.HasPackedWord() {
			v.words[v.wordCountPhysical-1] = uint32(newRun(false, last.FillCount()+uint32(n)))
			return
		}
	}
	v.ensurePhysicalCapacity(v.wordCountPhysical + 1)
	v.words[v.wordCountPhysical] = uint32(newRun(false, uint32(n)))
	v.wordCountPhysical++
}

func (v *Vector) appendFreshLiteralTail() {
	v.ensurePhysicalCapacity(v.wordCountPhysical + 1)
	v.words[v.wordCountPhysical] = 0
	v.wordCountPhysical++
}

// AndInPlace intersects other into v, in place. Rejected with
// ErrUnsupportedOperation when v is compressed (AND may only clear bits,
// and a compressed receiver cannot be safely shrunk in place).
func (v *Vector) AndInPlace(other *Vector) error {
	if v.compression != CompressionNone {
		return ErrUnsupportedOperation
	}
	dst := v.words[:v.wordCountPhysical]
	var phys int
	if other.compression == CompressionNone {
		phys, _ = v.kernels.AndInPlaceNN(dst, other.words[:other.wordCountPhysical])
	} else {
		phys, _ = v.kernels.AndInPlaceNCWPP(dst, other.words[:other.wordCountPhysical], other.wordCountLogical)
	}
	v.wordCountPhysical = phys
	v.wordCountLogical = phys
	return nil
}

// OrInPlace unions other into v, in place. Rejected with
// ErrUnsupportedOperation when v is compressed.
func (v *Vector) OrInPlace(other *Vector) error {
	if v.compression != CompressionNone {
		return ErrUnsupportedOperation
	}
	need := other.wordCountLogical
	if need > v.wordCountPhysical {
		v.ensurePhysicalCapacity(need)
		for i := v.wordCountPhysical; i < need; i++ {
			v.words[i] = 0
		}
		v.wordCountPhysical = need
		v.wordCountLogical = need
	}
	dst := v.words[:v.wordCountPhysical]
	if other.compression == CompressionNone {
		v.kernels.OrInPlaceNN(dst, other.words[:other.wordCountPhysical])
	} else {
		v.kernels.OrInPlaceNCWPP(dst, other.words[:other.wordCountPhysical], other.wordCountLogical)
	}
	return nil
}

// newVectorFromLiteralWords builds a vector of the given compression mode
// by replaying lits through SetWord, one logical word at a time. This
// reuses the forward-only write path to fold runs exactly as any other
// sequential construction would.
func newVectorFromLiteralWords(lits []uint32, compression Compression, k kernels.Set, allowUnsafe bool) *Vector {
	v := &Vector{
		words:             []uint32{0},
		wordCountPhysical: 1,
		wordCountLogical:  1,
		compression:       compression,
		allowUnsafe:       allowUnsafe,
		kernels:           k,
	}
	if len(lits) == 0 {
		return v
	}
	v.words[0] = lits[0]
	for i := 1; i < len(lits); i++ {
		_ = v.SetWord(i, Word(lits[i]))
	}
	return v
}

// AndOutOfPlace returns a fresh vector holding AND(v, other) in
// resultCompression, selecting the literal⊗literal, literal⊗compressed, or
// compressed⊗compressed kernel specialization as needed.
func (v *Vector) AndOutOfPlace(other *Vector, resultCompression Compression) (*Vector, error) {
	var lits []uint32
	switch {
	case v.compression == CompressionNone && other.compression == CompressionNone:
		lits = v.kernels.AndOutOfPlaceLL(v.words[:v.wordCountPhysical], other.words[:other.wordCountPhysical])
	case v.compression == CompressionNone:
		lits = v.kernels.AndOutOfPlaceLC(v.words[:v.wordCountPhysical], other.words[:other.wordCountPhysical], other.wordCountLogical)
	case other.compression == CompressionNone:
		lits = v.kernels.AndOutOfPlaceLC(other.words[:other.wordCountPhysical], v.words[:v.wordCountPhysical], v.wordCountLogical)
	default:
		lits = v.kernels.AndOutOfPlaceCC(v.words[:v.wordCountPhysical], v.wordCountLogical, other.words[:other.wordCountPhysical], other.wordCountLogical)
	}
	k, err := kernels.Get(v.allowUnsafe)
	if err != nil {
		return nil, ErrUnsafeUnavailable
	}
	return newVectorFromLiteralWords(lits, resultCompression, k, v.allowUnsafe), nil
}

// OrOutOfPlace returns a fresh, uncompressed vector holding the union of at
// least two vectors. It requires len(vectors) >= 2.
func OrOutOfPlace(vectors ...*Vector) (*Vector, error) {
	if len(vectors) < 2 {
		return nil, ErrArgumentRequired
	}
	maxLen := 0
	lits := make([][]uint32, len(vectors))
	for i, vec := range vectors {
		if vec.compression == CompressionNone {
			lits[i] = vec.words[:vec.wordCountPhysical]
		} else {
			buf := make([]uint32, vec.wordCountLogical)
			vec.kernels.DecompressInPlace(buf, vec.words[:vec.wordCountPhysical])
			lits[i] = buf
		}
		if len(lits[i]) > maxLen {
			maxLen = len(lits[i])
		}
	}
	out := make([]uint32, maxLen)
	for _, lit := range lits {
		for i, w := range lit {
			out[i] |= w
		}
	}
	k, err := kernels.Get(vectors[0].allowUnsafe)
	if err != nil {
		return nil, ErrUnsafeUnavailable
	}
	return newVectorFromLiteralWords(out, CompressionNone, k, vectors[0].allowUnsafe), nil
}

// AndPopulation returns population(AND(v, other)) without materializing the
// intersection. Both operands compressed is unsupported.
func (v *Vector) AndPopulation(other *Vector) (uint64, error) {
	switch {
	case v.compression == CompressionNone && other.compression == CompressionNone:
		return v.kernels.AndPopulationNN(v.words[:v.wordCountPhysical], other.words[:other.wordCountPhysical]), nil
	case v.compression == CompressionNone:
		return v.kernels.AndPopulationNCWPP(v.words[:v.wordCountPhysical], other.words[:other.wordCountPhysical]), nil
	case other.compression == CompressionNone:
		return other.kernels.AndPopulationNCWPP(other.words[:other.wordCountPhysical], v.words[:v.wordCountPhysical]), nil
	default:
		return 0, ErrUnsupportedOperation
	}
}

// AndPopulationAny short-circuits as soon as AND(v, other) has any set bit.
// Both operands compressed is unsupported.
func (v *Vector) AndPopulationAny(other *Vector) (bool, error) {
	switch {
	case v.compression == CompressionNone && other.compression == CompressionNone:
		return v.kernels.AndPopulationAnyNN(v.words[:v.wordCountPhysical], other.words[:other.wordCountPhysical]), nil
	case v.compression == CompressionNone:
		return v.kernels.AndPopulationAnyNCWPP(v.words[:v.wordCountPhysical], other.words[:other.wordCountPhysical]), nil
	case other.compression == CompressionNone:
		return other.kernels.AndPopulationAnyNCWPP(other.words[:other.wordCountPhysical], v.words[:v.wordCountPhysical]), nil
	default:
		return false, ErrUnsupportedOperation
	}
}

// Population returns the exact number of set bits.
func (v *Vector) Population() uint64 {
	var total uint64
	for i := 0; i < v.wordCountPhysical; i++ {
		total += uint64(Word(v.words[i]).Population())
	}
	return total
}

// PopulationAny reports whether any bit is set.
func (v *Vector) PopulationAny() bool {
	for i := 0; i < v.wordCountPhysical; i++ {
		if Word(v.words[i]).Population() > 0 {
			return true
		}
	}
	return false
}

// GetBitPositions returns a lazy, ascending sequence of every bit position
// equal to value. value=false is only supported on an uncompressed vector
// (an unbounded scan otherwise), and returns ErrUnsupportedOperation.
func (v *Vector) GetBitPositions(value bool) (iter.Seq[uint64], error) {
	if v.compression != CompressionNone && !value {
		return nil, ErrUnsupportedOperation
	}
	return func(yield func(uint64) bool) {
		cursor := 0
		for i := 0; i < v.wordCountPhysical; i++ {
			w := Word(v.words[i])
			if !w.IsCompressed() {
				base := uint64(cursor) * literalBits
				cont := w.BitPositions(value, func(bit uint32) bool {
					return yield(base + uint64(bit))
				})
				cursor++
				if !cont {
					return
				}
				continue
			}
			n := int(w.FillCount())
			if w.FillBit() {
				for j := 0; j < n; j++ {
					base := uint64(cursor) * literalBits
					for bit := uint32(0); bit < literalBits; bit++ {
						if !yield(base + uint64(bit)) {
							return
						}
					}
					cursor++
				}
			} else {
				cursor += n
			}
			if w.HasPackedWord() {
				base := uint64(cursor) * literalBits
				if !yield(base + uint64(w.PackedPosition()-1)) {
					return
				}
				cursor++
			}
		}
	}, nil
}

// OptimizeReadPhase produces a new vector of the same compression mode
// where every set bit p becomes p-shifts[p], and bits with shifts[p] < 0
// (tombstoned) are dropped. The boolean return reports whether any bit
// survived.
func (v *Vector) OptimizeReadPhase(shifts []int64) (bool, *Vector, error) {
	k, err := kernels.Get(v.allowUnsafe)
	if err != nil {
		return false, nil, ErrUnsafeUnavailable
	}
	out := &Vector{
		words:             []uint32{0},
		wordCountPhysical: 1,
		wordCountLogical:  1,
		compression:       v.compression,
		allowUnsafe:       v.allowUnsafe,
		kernels:           k,
	}
	positions, err := v.GetBitPositions(true)
	if err != nil {
		return false, nil, err
	}
	any := false
	for p := range positions {
		if p >= uint64(len(shifts)) {
			continue
		}
		s := shifts[p]
		if s < 0 {
			continue
		}
		newPos := p - uint64(s)
		if err := out.SetBit(newPos, true); err != nil {
			return false, nil, err
		}
		any = true
	}
	return any, out, nil
}
