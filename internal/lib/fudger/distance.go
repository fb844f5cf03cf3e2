package fudger

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/dpup/locfudge/internal/lib/fix"
	"github.com/dpup/locfudge/internal/lib/geo"
)

// DistanceFudger displaces fixes by a configured distance in a random
// compass direction that performs a small random walk at every refresh.
// Reported accuracy is never tighter than the displacement.
type DistanceFudger struct {
	mu         sync.RWMutex
	distanceKm int

	clock  Clock
	state  *OffsetState
	logger *zap.Logger
	memo   *memo
}

// directionalVector is the offset applied to one call.
type directionalVector struct {
	directionDeg float64
	distanceM    float64
	snapshot     offsetSnapshot
}

// NewDistanceFudger creates a fudger for distanceKm kilometers. Values
// <= 0 become DefaultDistanceKm. The offset is seeded before returning.
func NewDistanceFudger(distanceKm int, opts ...Option) *DistanceFudger {
	o := buildOptions(opts)

	state := o.state
	if state == nil {
		if o.scope == ScopeGlobal {
			state = GlobalOffsetState()
			state.Configure(o.clock.Now(), o.interval, o.rnd)
		} else {
			state = NewOffsetState(o.interval, o.rnd)
		}
	}

	d := &DistanceFudger{
		distanceKm: coerceDistanceKm(distanceKm),
		clock:      o.clock,
		state:      state,
		logger:     o.logger.Named("distance_fudger"),
		memo:       newMemo(o.memoEntries, o.clock),
	}
	if snap := state.snapshot(o.clock.Now()); snap.refreshed {
		d.logRefresh(snap)
	}
	return d
}

func coerceDistanceKm(km int) int {
	if km > 0 {
		return km
	}
	return DefaultDistanceKm
}

// DistanceKm returns the configured base distance.
func (d *DistanceFudger) DistanceKm() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.distanceKm
}

// SetDistanceKm changes the base distance and reseeds the offset at once,
// so a policy change is never masked by the remainder of the old window.
func (d *DistanceFudger) SetDistanceKm(distanceKm int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.distanceKm = coerceDistanceKm(distanceKm)
	snap := d.state.reseed(d.clock.Now())
	d.memo.reset()

	d.logger.Info("distance reconfigured",
		zap.Int("distance_km", d.distanceKm),
		zap.Uint64("generation", snap.generation),
		zap.Time("next_refresh", snap.expiresAt),
	)
}

// Obfuscate returns a displaced, stripped copy of fine.
func (d *DistanceFudger) Obfuscate(fine fix.Fix) fix.Fix {
	return d.apply(fine, d.vector())
}

// ObfuscateBatch applies one vector to every fix, preserving order.
func (d *DistanceFudger) ObfuscateBatch(fine fix.Batch) fix.Batch {
	v := d.vector()
	return fine.Map(func(f fix.Fix) fix.Fix {
		return d.apply(f, v)
	})
}

// vector makes this call's single refresh decision and captures the base
// distance together with the offset it pairs with.
func (d *DistanceFudger) vector() directionalVector {
	d.mu.RLock()
	km := d.distanceKm
	snap := d.state.snapshot(d.clock.Now())
	d.mu.RUnlock()

	if snap.refreshed {
		d.memo.reset()
		d.logRefresh(snap)
	}

	return directionalVector{
		directionDeg: snap.direction,
		distanceM:    float64(km) * 1000.0 * snap.factor,
		snapshot:     snap,
	}
}

func (d *DistanceFudger) apply(fine fix.Fix, v directionalVector) fix.Fix {
	key := ""
	if d.memo != nil {
		key = memoKey(v.snapshot.generation, v.distanceM, fine)
		if coarse, ok := d.memo.get(key); ok {
			return coarse
		}
	}

	angle := v.directionDeg * math.Pi / 180
	north := v.distanceM * math.Cos(angle)
	east := v.distanceM * math.Sin(angle)

	coarse := fine.Stripped().WithPoint(geo.Displace(fine.Point(), north, east))
	if math.IsNaN(fine.Accuracy) || math.IsInf(fine.Accuracy, 0) {
		coarse.Accuracy = v.distanceM
	} else {
		coarse.Accuracy = math.Max(fine.Accuracy, v.distanceM)
	}

	if d.logger.Core().Enabled(zap.DebugLevel) {
		d.logger.Debug("coarsened fix",
			zap.Float64("fine_lat", fine.Latitude),
			zap.Float64("fine_lng", fine.Longitude),
			zap.Float64("coarse_lat", coarse.Latitude),
			zap.Float64("coarse_lng", coarse.Longitude),
			zap.Float64("north_m", north),
			zap.Float64("east_m", east),
			zap.Float64("accuracy_m", coarse.Accuracy),
		)
	}

	d.memo.put(key, coarse, v.snapshot.expiresAt)
	return coarse
}

func (d *DistanceFudger) logRefresh(snap offsetSnapshot) {
	d.logger.Debug("directional offset refreshed",
		zap.Float64("direction_deg", snap.direction),
		zap.Float64("distance_factor", snap.factor),
		zap.Uint64("generation", snap.generation),
		zap.Time("next_refresh", snap.expiresAt),
	)
}
