// Package bloom implements the store's per-SST Bloom filter: a
// deterministic, fixed-size membership sketch used to skip bundles that
// certainly do not contain a queried key.
package bloom

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ravipatel/lumendb/lumenerr"
)

const (
	// DefaultSize is the default filter buffer size in bytes (one slot
	// per byte, not bit-packed).
	DefaultSize = 65536
	// DefaultNHashes is the default number of hash rounds per key.
	DefaultNHashes = 5
)

// Filter is a byte-addressed Bloom filter. Each of the n_hashes rounds
// derives one index into a size-byte buffer from a single 64-bit hash of
// the key re-fed with the round counter mixed in.
type Filter struct {
	buf     []byte
	nHashes uint8
	size    int
}

// New creates an empty filter with the given buffer size (in bytes) and
// number of hash rounds.
func New(size int, nHashes uint8) *Filter {
	if size <= 0 {
		size = DefaultSize
	}
	if nHashes == 0 {
		nHashes = DefaultNHashes
	}
	return &Filter{buf: make([]byte, size), nHashes: nHashes, size: size}
}

// NewDefault creates a filter using spec defaults (size=65536, n_hashes=5).
func NewDefault() *Filter {
	return New(DefaultSize, DefaultNHashes)
}

// AddKey sets the bits derived from key.
func (f *Filter) AddKey(key string) {
	for _, idx := range f.indices(key) {
		f.buf[idx] = 1
	}
}

// MayContain returns true iff every bit derived from key is set. False
// positives are allowed; false negatives are forbidden.
func (f *Filter) MayContain(key string) bool {
	for _, idx := range f.indices(key) {
		if f.buf[idx] == 0 {
			return false
		}
	}
	return true
}

// indices computes the n_hashes slot indices for key. A single 64-bit
// hash of the key is computed once; each round hashes that digest again
// with the round counter appended as a trailing byte.
func (f *Filter) indices(key string) []uint64 {
	base := xxhash.Sum64String(key)
	indices := make([]uint64, f.nHashes)
	var roundBuf [9]byte
	binary.BigEndian.PutUint64(roundBuf[:8], base)
	for round := uint8(0); round < f.nHashes; round++ {
		roundBuf[8] = round
		h := xxhash.Sum64(roundBuf[:])
		indices[round] = h % uint64(f.size)
	}
	return indices
}

// Marshal serializes the filter as its raw buffer followed by a single
// trailing byte holding n_hashes.
func (f *Filter) Marshal() []byte {
	out := make([]byte, len(f.buf)+1)
	copy(out, f.buf)
	out[len(out)-1] = f.nHashes
	return out
}

// Unmarshal decodes a filter previously produced by Marshal. It fails
// if fewer than 2 bytes are supplied.
func Unmarshal(data []byte) (*Filter, error) {
	if len(data) < 2 {
		return nil, lumenerr.NewDecode("bloom: buffer too short: %d bytes", len(data))
	}
	nHashes := data[len(data)-1]
	buf := make([]byte, len(data)-1)
	copy(buf, data[:len(data)-1])
	return &Filter{buf: buf, nHashes: nHashes, size: len(buf)}, nil
}
