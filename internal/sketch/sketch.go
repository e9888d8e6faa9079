// Package sketch implements the 4-bit Count-Min frequency sketch spec
// §4.1 calls for: the long-term frequency signal TinyLFU admission needs
// without tracking a full per-key counter.
//
// Written directly from spec §4.1's bit-packing description; the only
// similarly-shaped reference retrieved for this spec
// (other_examples/dgraph-io-ristretto policy.go) calls a `NewCM`/
// `Sketch.Increment`/`Sketch.Estimate` it doesn't define in the retrieved
// file, so the packing and hashing here are original to this package, not
// ported.
package sketch

import (
	"math/bits"
)

const (
	counterBits = 4
	countersPerWord = 64 / counterBits // 16
	counterMax      = 15
)

// Frequency is a 4-bit Count-Min sketch with 4 hash functions, packed
// 16-to-a-word. Counters saturate at 15 and are halved ("reset") once the
// sample count reaches 10x capacity.
type Frequency struct {
	table  []uint64 // counterPerWord counters per word, 4 rows concatenated
	rowLen int      // words per row
	mask   uint64   // counter-index mask within a row, rowLen*countersPerWord - 1 rounded to pow2
	size   uint64   // sample counter
	sampleMax uint64
}

// seeds are fixed odd multipliers, one per hash row, matching the "4 hash
// functions with fixed seeds" requirement in spec §4.1.
var seeds = [4]uint64{
	0xff51afd7ed558ccd,
	0xc4ceb9fe1a85ec53,
	0x2545F4914F6CDD1D,
	0x9E3779B97F4A7C15,
}

// New constructs a sketch sized for the given maximum. A maximum of 0
// leaves the sketch uninitialized (EnsureCapacity must be called before
// use), matching spec §4.1's lazy-init note.
func New(maximum int) *Frequency {
	f := &Frequency{}
	if maximum > 0 {
		f.EnsureCapacity(maximum)
	}
	return f
}

// EnsureCapacity lazily (re)sizes the sketch to the next power of two of
// maximum. Growing is only valid before any entries have been recorded
// against the current table (spec §4.1); a no-op once sized large enough.
func (f *Frequency) EnsureCapacity(maximum int) {
	if maximum < 1 {
		maximum = 1
	}
	capacity := nextPow2(uint64(maximum))
	if uint64(f.rowLen)*uint64(countersPerWord) >= capacity {
		return
	}
	rowLen := int(capacity / countersPerWord)
	if rowLen < 1 {
		rowLen = 1
	}
	f.table = make([]uint64, rowLen*4)
	f.rowLen = rowLen
	f.mask = capacity - 1
	f.size = 0
	f.sampleMax = capacity * 10
}

// Initialized reports whether EnsureCapacity has ever run: the read
// fast-path bypass in spec §4.6 depends on this.
func (f *Frequency) Initialized() bool { return f.rowLen > 0 }

func nextPow2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len64(n-1)
}

// indexAndCounter returns the word index within row r and the bit offset
// of the counter for hash h.
func (f *Frequency) indexAndCounter(row int, h uint64) (wordIdx int, shift uint) {
	counterIdx := h & f.mask
	wordIdx = row*f.rowLen + int(counterIdx/countersPerWord)
	shift = uint(counterIdx%countersPerWord) * counterBits
	return
}

func (f *Frequency) hashes(keyHash uint64) [4]uint64 {
	var out [4]uint64
	for i, seed := range seeds {
		h := keyHash ^ seed
		h ^= h >> 33
		h *= 0xff51afd7ed558ccd
		h ^= h >> 33
		h *= 0xc4ceb9fe1a85ec53
		h ^= h >> 33
		out[i] = h
	}
	return out
}

// Increment records one observation of keyHash, saturating each of the 4
// counters at 15, and ages the whole table once the sample counter
// reaches 10x capacity (spec §4.1).
func (f *Frequency) Increment(keyHash uint64) {
	if !f.Initialized() {
		return
	}
	hs := f.hashes(keyHash)
	for row, h := range hs {
		wordIdx, shift := f.indexAndCounter(row, h)
		word := f.table[wordIdx]
		counter := (word >> shift) & counterMax
		if counter < counterMax {
			f.table[wordIdx] = word + (1 << shift)
		}
	}
	f.size++
	if f.size >= f.sampleMax {
		f.reset()
	}
}

// Estimate returns the estimated frequency of keyHash, 0..15.
func (f *Frequency) Estimate(keyHash uint64) uint8 {
	if !f.Initialized() {
		return 0
	}
	hs := f.hashes(keyHash)
	min := uint8(counterMax)
	for row, h := range hs {
		wordIdx, shift := f.indexAndCounter(row, h)
		counter := uint8((f.table[wordIdx] >> shift) & counterMax)
		if counter < min {
			min = counter
		}
	}
	return min
}

// reset halves every counter in place and halves the sample counter
// (spec §4.1 "aging").
func (f *Frequency) reset() {
	for i, word := range f.table {
		// Clear the low bit of every 4-bit counter, then shift right by
		// one within each nibble via a mask-and-shift, halving every
		// counter simultaneously.
		f.table[i] = (word >> 1) & 0x7777777777777777
	}
	f.size /= 2
}
