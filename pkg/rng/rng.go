// Package rng provides the deterministic randomness and tick clock every
// replayed subsystem depends on. For a given seed the output sequence is
// identical across runs and across nodes, so both sides of a battle can
// recompute the same result independently.
package rng

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// Rng is a splitmix64 stream over a blake3-derived seed.
type Rng struct {
	seed  uint64
	state uint64
}

// New seeds from an arbitrary string (composite seeds like
// "pvp-<a>-<b>-<tick>" included).
func New(seed string) *Rng {
	sum := blake3.Sum256([]byte(seed))
	s := binary.BigEndian.Uint64(sum[:8])
	return &Rng{seed: s, state: s}
}

// NewInt seeds from an integer.
func NewInt(seed int64) *Rng {
	return New(fmt.Sprintf("%d", seed))
}

func (r *Rng) nextUint64() uint64 {
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Next returns a float64 in [0,1).
func (r *Rng) Next() float64 {
	return float64(r.nextUint64()>>11) / (1 << 53)
}

// NextRange returns a float64 in [lo,hi).
func (r *Rng) NextRange(lo, hi float64) float64 {
	return lo + (hi-lo)*r.Next()
}

// NextInt returns an integer in [lo,hi] inclusive.
func (r *Rng) NextInt(lo, hi int) int {
	if hi < lo {
		lo, hi = hi, lo
	}
	span := uint64(hi-lo) + 1
	return lo + int(r.nextUint64()%span)
}

// Chance returns true with probability p.
func (r *Rng) Chance(p float64) bool {
	return r.Next() < p
}

// Pick returns a uniformly chosen element. Panics on an empty slice, same
// as indexing would.
func Pick[T any](r *Rng, items []T) T {
	return items[r.NextInt(0, len(items)-1)]
}

// Skip advances the stream by n draws.
func (r *Rng) Skip(n int) {
	for i := 0; i < n; i++ {
		r.nextUint64()
	}
}

// Reset rewinds the stream to its initial seed state.
func (r *Rng) Reset() {
	r.state = r.seed
}

// PvpSeed is the composite seed both combatants derive for a battle.
func PvpSeed(attackerID, defenderID string, tick int64) string {
	return fmt.Sprintf("pvp-%s-%s-%d", attackerID, defenderID, tick)
}
