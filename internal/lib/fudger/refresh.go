package fudger

import (
	crand "crypto/rand"
	"math"
	"math/rand/v2"
	"time"
)

// Clock supplies the current time. Implementations should carry a
// monotonic reading, as time.Now does, so wall clock jumps do not shorten
// or stretch a refresh window.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Rand yields uniform samples in [0, 1).
type Rand interface {
	Float64() float64
}

// NewSecureRand returns a ChaCha8 generator seeded from crypto/rand.
func NewSecureRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// Unreachable on supported platforms.
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewChaCha8(seed))
}

// schedule tracks when a sampled vector expires.
type schedule struct {
	interval time.Duration
	next     time.Time
}

func (s *schedule) due(now time.Time) bool {
	return !now.Before(s.next)
}

func (s *schedule) reschedule(now time.Time) {
	s.next = now.Add(s.interval)
}

// uniform returns a sample in [0, 1), treating a misbehaving source as 0.
func uniform(r Rand) float64 {
	x := r.Float64()
	if !(x >= 0) || x >= 1 {
		return 0
	}
	return x
}

// positiveUniform returns a sample in (0, 1]. Zero and invalid draws become
// the smallest positive float so logarithms stay finite.
func positiveUniform(r Rand) float64 {
	x := 1 - uniform(r)
	if !(x > 0) {
		return math.SmallestNonzeroFloat64
	}
	return x
}

// symmetric returns a sample in [-1, 1).
func symmetric(r Rand) float64 {
	return uniform(r)*2 - 1
}
