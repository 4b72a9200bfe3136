// Package prng implements the engine's counter-based keyed pseudo-random
// stream (spec §4.3, §6, §9): every draw is a pure function of
// (global_seed, symbol, day_index, purpose), never of wall-clock time or
// global mutable rand state, so that price(symbol, t) is reproducible
// (invariant I1) and never leaks information about instants it hasn't
// been asked about (invariant I7).
package prng

import (
	"encoding/binary"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Purpose disambiguates independent draw streams for the same
// (seed, symbol, day) so that, e.g., a daily-noise draw and a
// buyback-probability draw for the same symbol on the same day are
// uncorrelated.
type Purpose string

const (
	PurposeDailyNoise   Purpose = "daily_noise"
	PurposeBuyback      Purpose = "buyback"
	PurposeIssuance     Purpose = "issuance"
	PurposeRegimeNoise  Purpose = "regime_noise"
	PurposeEconIndicator Purpose = "econ_indicator"
)

// Stream is a counter-keyed deterministic random source for one
// (globalSeed, symbol, purpose) triple. Successive days are addressed by
// day index; the same (stream, day) pair always reproduces the same
// draws, regardless of call order or intervening calls to other streams.
type Stream struct {
	globalSeed int64
	symbol     string
	purpose    Purpose
}

// New constructs a Stream. globalSeed is constant within one savegame and
// may be rotated only across distinct savegames (spec §6).
func New(globalSeed int64, symbol string, purpose Purpose) Stream {
	return Stream{globalSeed: globalSeed, symbol: symbol, purpose: purpose}
}

// fnv1a64 hashes an arbitrary byte string to a 64-bit digest. Used only to
// fold the variable-length (symbol, purpose) strings into a fixed-width
// input for splitMix64 below — it carries no randomness of its own, so
// the overall construction stays a pure function of its inputs across
// runs and processes.
func fnv1a64(data []byte) uint64 {
	const offset = 14695981039346656037
	const prime = 1099511628211
	h := uint64(offset)
	for _, b := range data {
		h ^= uint64(b)
		h *= prime
	}
	return h
}

// splitMix64 is Vigna's SplitMix64 mixing step, the "Stream =
// SplitMix/Philox keyed by (...)" construction spec §6 names explicitly.
func splitMix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// keyFor derives a uint64 key for (stream, dayIndex, draw) by folding the
// symbol+purpose into a fixed-width salt via fnv1a64, then mixing it with
// the global seed, day index, and draw ordinal through successive
// splitMix64 steps.
func (s Stream) keyFor(dayIndex int64, draw uint32) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(s.symbol)))
	copy(buf[8:], s.symbol)
	salt := fnv1a64(append(buf[:], []byte(s.purpose)...))

	x := splitMix64(uint64(s.globalSeed))
	x = splitMix64(x ^ salt)
	x = splitMix64(x ^ uint64(dayIndex))
	x = splitMix64(x ^ uint64(draw))
	return x
}

// Uniform01 returns a deterministic draw in [0, 1) for the given day index
// and draw ordinal (use distinct draw ordinals when a single day needs more
// than one independent value from the same purpose).
func (s Stream) Uniform01(dayIndex int64, draw uint32) float64 {
	k := s.keyFor(dayIndex, draw)
	// Top 53 bits give a uniform double in [0,1) with full mantissa
	// precision.
	return float64(k>>11) / float64(1<<53)
}

// StandardNormal returns a deterministic draw from N(0,1) for the given
// day index and draw ordinal, via inverse-CDF transform of a single
// uniform draw (Box-Muller would also work; inverse-CDF
// keeps the dependency on gonum's distuv meaningful rather than
// decorative).
func (s Stream) StandardNormal(dayIndex int64, draw uint32) float64 {
	u := s.Uniform01(dayIndex, draw)
	// Clamp away from the exact boundaries where Quantile is undefined.
	u = math.Max(1e-12, math.Min(1-1e-12, u))
	n := distuv.Normal{Mu: 0, Sigma: 1}
	return n.Quantile(u)
}

// Bool returns a deterministic boolean draw that is true with probability
// p (e.g. "does this symbol's buyback fire this month").
func (s Stream) Bool(dayIndex int64, draw uint32, p float64) bool {
	return s.Uniform01(dayIndex, draw) < p
}

// RangeFloat returns a deterministic draw uniformly distributed in
// [lo, hi).
func (s Stream) RangeFloat(dayIndex int64, draw uint32, lo, hi float64) float64 {
	return lo + s.Uniform01(dayIndex, draw)*(hi-lo)
}
