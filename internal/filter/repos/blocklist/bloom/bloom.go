// Package bloom backs the blocklist gram prefilter with bits-and-blooms
// Bloom filters.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-filter/internal/filter/repos/blocklist"
)

const defaultFPRate = 0.01

// Factory builds Bloom filters sized with bitsbloom.EstimateParameters.
type Factory struct{}

// NewFactory returns a blocklist.GramFilterFactory.
func NewFactory() blocklist.GramFilterFactory { return Factory{} }

// New sizes a filter for capacity grams. Out-of-range rates fall back to 1%
// and a zero capacity is treated as one.
func (Factory) New(capacity uint64, fpRate float64) blocklist.GramFilter {
	if capacity == 0 {
		capacity = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = defaultFPRate
	}
	m, k := bitsbloom.EstimateParameters(uint(capacity), fpRate)
	return &Filter{bf: bitsbloom.New(m, k)}
}

// Filter holds gram prefixes. Add is not safe concurrently with other calls;
// the index only adds while building and reads afterwards.
type Filter struct {
	bf *bitsbloom.BloomFilter
}

func (f *Filter) Add(gram []byte)               { f.bf.Add(gram) }
func (f *Filter) MightContain(gram []byte) bool { return f.bf.Test(gram) }

// Bits returns the size of the bit array.
func (f *Filter) Bits() uint { return f.bf.Cap() }

// Hashes returns the number of hash functions.
func (f *Filter) Hashes() uint { return f.bf.K() }

var _ blocklist.GramFilter = (*Filter)(nil)
