package fudger

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultDistanceKm replaces non-positive configured distances.
	DefaultDistanceKm = 10

	// DefaultDistanceRefreshInterval bounds how long one directional offset
	// is observable.
	DefaultDistanceRefreshInterval = time.Minute

	// DirectionJitterDegrees is the per-refresh random walk step.
	DirectionJitterDegrees = 3.0

	// DistanceVariation is the per-refresh relative distance jitter.
	DistanceVariation = 0.05
)

// Scope decides who shares a directional offset.
//
// ScopeInstance gives every DistanceFudger its own independently walking
// offset, so the coarse fixes handed to different consumers drift
// independently. ScopeGlobal backs every fudger in the process with one
// offset; all consumers see their coarse fixes shift in lockstep, which is
// a weaker guarantee but keeps two consumers from triangulating the true
// position by comparing their views.
type Scope string

const (
	ScopeInstance Scope = "instance"
	ScopeGlobal   Scope = "global"
)

// ParseScope maps a configuration string to a Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeInstance, "":
		return ScopeInstance, nil
	case ScopeGlobal:
		return ScopeGlobal, nil
	default:
		return "", fmt.Errorf("unknown offset scope %q", s)
	}
}

// OffsetState is a sampled compass direction and distance factor plus the
// time they expire. One mutex guards the expiry check, the resample and the
// snapshot read, so callers never observe a half-updated vector.
type OffsetState struct {
	mu         sync.Mutex
	rnd        Rand
	sched      schedule
	seeded     bool
	direction  float64 // degrees, 0 = north, 90 = east
	factor     float64 // multiplies the caller's base distance
	generation uint64
}

// NewOffsetState creates an unseeded state. It is seeded by the first
// fudger that uses it. A nil rnd selects NewSecureRand; a non-positive
// interval selects DefaultDistanceRefreshInterval.
func NewOffsetState(interval time.Duration, rnd Rand) *OffsetState {
	if interval <= 0 {
		interval = DefaultDistanceRefreshInterval
	}
	if rnd == nil {
		rnd = NewSecureRand()
	}
	return &OffsetState{
		rnd:    rnd,
		sched:  schedule{interval: interval},
		factor: 1,
	}
}

var globalOffsets struct {
	once  sync.Once
	state *OffsetState
}

// GlobalOffsetState returns the process-wide state used by ScopeGlobal.
func GlobalOffsetState() *OffsetState {
	globalOffsets.once.Do(func() {
		globalOffsets.state = NewOffsetState(DefaultDistanceRefreshInterval, nil)
	})
	return globalOffsets.state
}

// Configure replaces the refresh interval and random source. A
// non-positive interval or nil rnd leaves that setting unchanged. A
// shortened interval takes effect immediately: an expiry further away than
// now+interval is pulled in.
func (s *OffsetState) Configure(now time.Time, interval time.Duration, rnd Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rnd != nil {
		s.rnd = rnd
	}
	if interval <= 0 {
		return
	}
	s.sched.interval = interval
	if limit := now.Add(interval); s.seeded && s.sched.next.After(limit) {
		s.sched.next = limit
	}
}

// Interval returns the current refresh interval.
func (s *OffsetState) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.interval
}

// offsetSnapshot is an immutable copy of the state for one transform.
type offsetSnapshot struct {
	direction  float64
	factor     float64
	expiresAt  time.Time
	generation uint64
	refreshed  bool
}

// snapshot makes the refresh decision for now and returns the vector to use.
func (s *OffsetState) snapshot(now time.Time) offsetSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshed := false
	switch {
	case !s.seeded:
		s.seedLocked(now)
		refreshed = true
	case s.sched.due(now):
		s.advanceLocked(now)
		refreshed = true
	}
	return offsetSnapshot{
		direction:  s.direction,
		factor:     s.factor,
		expiresAt:  s.sched.next,
		generation: s.generation,
		refreshed:  refreshed,
	}
}

// reseed discards the current vector for a fresh uniform direction.
func (s *OffsetState) reseed(now time.Time) offsetSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seedLocked(now)
	return offsetSnapshot{
		direction:  s.direction,
		factor:     s.factor,
		expiresAt:  s.sched.next,
		generation: s.generation,
		refreshed:  true,
	}
}

func (s *OffsetState) seedLocked(now time.Time) {
	s.direction = uniform(s.rnd) * 360.0
	s.factor = 1
	s.seeded = true
	s.generation++
	s.sched.reschedule(now)
}

// advanceLocked walks the direction a few degrees from where it was, so the
// offset never visibly jumps at a refresh boundary.
func (s *OffsetState) advanceLocked(now time.Time) {
	s.factor = 1 + symmetric(s.rnd)*DistanceVariation
	s.direction = wrapDegrees(s.direction + symmetric(s.rnd)*DirectionJitterDegrees)
	s.generation++
	s.sched.reschedule(now)
}

// wrapDegrees reduces d into [0, 360).
func wrapDegrees(d float64) float64 {
	d = math.Mod(d, 360.0)
	if d < 0 {
		d += 360.0
	}
	if d >= 360.0 {
		d -= 360.0
	}
	return d
}
