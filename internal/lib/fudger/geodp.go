package fudger

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/locfudge/internal/lib/fix"
	"github.com/dpup/locfudge/internal/lib/geo"
)

const (
	// MinAccuracyMeters is the default floor on the GeoDP accuracy radius.
	MinAccuracyMeters = 200.0

	// DefaultNoiseRefreshInterval is how long one noise vector is reused.
	DefaultNoiseRefreshInterval = time.Hour
)

// GeoDPFudger implements geo-indistinguishability with planar Laplace
// noise. The privacy budget is epsilon = 2 / accuracy, which makes the
// expected displacement equal to the accuracy radius.
//
// One noise vector is shared by every fix inside a refresh window. Fresh
// per-fix noise would average out toward the true position as an observer
// collects fixes.
type GeoDPFudger struct {
	mu          sync.Mutex
	accuracyM   float64
	minAccuracy float64
	epsilon     float64
	noise       noiseVector
	sched       schedule
	generation  uint64

	clock  Clock
	rnd    Rand
	logger *zap.Logger
	memo   *memo
}

// noiseVector is a displacement in meters.
type noiseVector struct {
	north  float64
	east   float64
	radius float64
}

type noiseSnapshot struct {
	accuracyM  float64
	noise      noiseVector
	expiresAt  time.Time
	generation uint64
	refreshed  bool
}

// NewGeoDPFudger creates a fudger calibrated to accuracyM meters, floored
// at the minimum accuracy. Noise is sampled before returning.
func NewGeoDPFudger(accuracyM float64, opts ...Option) *GeoDPFudger {
	o := buildOptions(opts)

	interval := o.interval
	if interval <= 0 {
		interval = DefaultNoiseRefreshInterval
	}
	rnd := o.rnd
	if rnd == nil {
		rnd = NewSecureRand()
	}
	minAccuracy := o.minAccuracy
	if !(minAccuracy > 0) || math.IsInf(minAccuracy, 0) {
		minAccuracy = MinAccuracyMeters
	}

	g := &GeoDPFudger{
		minAccuracy: minAccuracy,
		sched:       schedule{interval: interval},
		clock:       o.clock,
		rnd:         rnd,
		logger:      o.logger.Named("geodp_fudger"),
		memo:        newMemo(o.memoEntries, o.clock),
	}

	g.mu.Lock()
	g.calibrateLocked(accuracyM)
	g.resampleLocked(o.clock.Now())
	snap := g.snapshotLocked(true)
	g.mu.Unlock()

	g.logRefresh(snap)
	return g
}

// Accuracy returns the floored accuracy radius in meters.
func (g *GeoDPFudger) Accuracy() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accuracyM
}

// Epsilon returns the privacy budget per meter.
func (g *GeoDPFudger) Epsilon() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.epsilon
}

// SetAccuracy recalibrates epsilon and resamples the noise at once.
func (g *GeoDPFudger) SetAccuracy(accuracyM float64) {
	g.mu.Lock()
	g.calibrateLocked(accuracyM)
	g.resampleLocked(g.clock.Now())
	snap := g.snapshotLocked(true)
	g.mu.Unlock()

	g.memo.reset()
	g.logger.Info("accuracy reconfigured",
		zap.Float64("accuracy_m", snap.accuracyM),
		zap.Float64("epsilon", 2.0/snap.accuracyM),
		zap.Uint64("generation", snap.generation),
		zap.Time("next_refresh", snap.expiresAt),
	)
}

// Obfuscate returns a noised, stripped copy of fine.
func (g *GeoDPFudger) Obfuscate(fine fix.Fix) fix.Fix {
	return g.apply(fine, g.current())
}

// ObfuscateBatch applies one noise vector to every fix, preserving order.
func (g *GeoDPFudger) ObfuscateBatch(fine fix.Batch) fix.Batch {
	snap := g.current()
	return fine.Map(func(f fix.Fix) fix.Fix {
		return g.apply(f, snap)
	})
}

func (g *GeoDPFudger) current() noiseSnapshot {
	g.mu.Lock()
	now := g.clock.Now()
	refreshed := false
	if g.sched.due(now) {
		g.resampleLocked(now)
		refreshed = true
	}
	snap := g.snapshotLocked(refreshed)
	g.mu.Unlock()

	if refreshed {
		g.memo.reset()
		g.logRefresh(snap)
	}
	return snap
}

func (g *GeoDPFudger) calibrateLocked(accuracyM float64) {
	if math.IsNaN(accuracyM) || math.IsInf(accuracyM, 0) || accuracyM < g.minAccuracy {
		accuracyM = g.minAccuracy
	}
	g.accuracyM = accuracyM
	g.epsilon = 2.0 / accuracyM
}

// resampleLocked draws a planar Laplace displacement: the radius is
// Gamma(2, 1/epsilon), the sum of two Exp(epsilon) draws, and the angle is
// uniform.
func (g *GeoDPFudger) resampleLocked(now time.Time) {
	u := positiveUniform(g.rnd)
	v := positiveUniform(g.rnd)
	// -ln(u*v) split so two tiny draws cannot underflow to ln(0)
	radius := -(math.Log(u) + math.Log(v)) / g.epsilon
	theta := 2 * math.Pi * uniform(g.rnd)

	g.noise = noiseVector{
		north:  radius * math.Sin(theta),
		east:   radius * math.Cos(theta),
		radius: radius,
	}
	g.generation++
	g.sched.reschedule(now)
}

func (g *GeoDPFudger) snapshotLocked(refreshed bool) noiseSnapshot {
	return noiseSnapshot{
		accuracyM:  g.accuracyM,
		noise:      g.noise,
		expiresAt:  g.sched.next,
		generation: g.generation,
		refreshed:  refreshed,
	}
}

func (g *GeoDPFudger) apply(fine fix.Fix, snap noiseSnapshot) fix.Fix {
	key := ""
	if g.memo != nil {
		key = memoKey(snap.generation, snap.accuracyM, fine)
		if coarse, ok := g.memo.get(key); ok {
			return coarse
		}
	}

	coarse := fine.Stripped().WithPoint(geo.Displace(fine.Point(), snap.noise.north, snap.noise.east))
	coarse.Accuracy = snap.accuracyM

	g.memo.put(key, coarse, snap.expiresAt)
	return coarse
}

func (g *GeoDPFudger) logRefresh(snap noiseSnapshot) {
	g.logger.Debug("noise refreshed",
		zap.Float64("radius_m", snap.noise.radius),
		zap.Float64("accuracy_m", snap.accuracyM),
		zap.Uint64("generation", snap.generation),
		zap.Time("next_refresh", snap.expiresAt),
	)
}
