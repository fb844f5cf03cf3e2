package services

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/dpup/prefab/logging"

	"github.com/dpup/locfudge/internal/config"
	"github.com/dpup/locfudge/internal/lib/fix"
	"github.com/dpup/locfudge/internal/lib/fudger"
	"github.com/dpup/locfudge/internal/settings"
)

// CoarseLocationService is the single entry point lower-trust consumers
// read through. It owns one instance of each strategy and routes fixes to
// whichever the current settings select. There is no pass-through mode.
type CoarseLocationService struct {
	distance *fudger.DistanceFudger
	geodp    *fudger.GeoDPFudger

	mu       sync.RWMutex
	kind     fudger.Kind
	applied  settings.Snapshot
	defaults settings.Snapshot
}

var _ fudger.Obfuscator = (*CoarseLocationService)(nil)

// NewCoarseLocationService creates both strategies from cfg. opts are
// appended after the options derived from cfg, so callers can inject a
// clock, random source or logger.
func NewCoarseLocationService(cfg config.EngineConfig, opts ...fudger.Option) (*CoarseLocationService, error) {
	kind, err := fudger.ParseKind(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	scope, err := fudger.ParseScope(cfg.OffsetScope)
	if err != nil {
		return nil, err
	}

	common := []fudger.Option{
		fudger.WithScope(scope),
		fudger.WithMemo(cfg.MemoEntries),
	}
	if cfg.MinAccuracyMeters > 0 {
		common = append(common, fudger.WithMinAccuracy(cfg.MinAccuracyMeters))
	}

	distanceOpts := append(append([]fudger.Option{}, common...), fudger.WithRefreshInterval(cfg.DistanceRefreshInterval))
	geodpOpts := append(append([]fudger.Option{}, common...), fudger.WithRefreshInterval(cfg.NoiseRefreshInterval))

	defaults := settings.Snapshot{
		FakeLocationEnabled: kind == fudger.KindDistance,
		DistanceKm:          cfg.DistanceKm,
		AccuracyMeters:      accuracyToInt(cfg.AccuracyMeters),
	}

	return &CoarseLocationService{
		distance: fudger.NewDistanceFudger(cfg.DistanceKm, append(distanceOpts, opts...)...),
		geodp:    fudger.NewGeoDPFudger(cfg.AccuracyMeters, append(geodpOpts, opts...)...),
		kind:     kind,
		applied:  defaults,
		defaults: defaults,
	}, nil
}

func accuracyToInt(m float64) int {
	if math.IsNaN(m) || m <= 0 {
		return 0
	}
	if m >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Ceil(m))
}

// Defaults returns the snapshot implied by configuration, used when the
// settings store has no value for a name.
func (s *CoarseLocationService) Defaults() settings.Snapshot {
	return s.defaults
}

// Applied returns the most recently applied snapshot.
func (s *CoarseLocationService) Applied() settings.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// Active returns the strategy fixes are currently routed to.
func (s *CoarseLocationService) Active() fudger.Kind {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kind
}

// Apply switches strategy and forwards magnitudes. Magnitudes are only
// forwarded when they differ from the last applied snapshot so that an
// unrelated settings change does not reseed the offset.
func (s *CoarseLocationService) Apply(ctx context.Context, snap settings.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.DistanceKm != s.applied.DistanceKm {
		s.distance.SetDistanceKm(snap.DistanceKm)
		logging.Infow(ctx, "Coarse location: distance updated",
			"from_km", s.applied.DistanceKm, "to_km", s.distance.DistanceKm())
	}
	if snap.AccuracyMeters != s.applied.AccuracyMeters {
		s.geodp.SetAccuracy(float64(snap.AccuracyMeters))
		logging.Infow(ctx, "Coarse location: accuracy updated",
			"from_m", s.applied.AccuracyMeters, "to_m", s.geodp.Accuracy())
	}

	kind := fudger.KindGeoDP
	if snap.FakeLocationEnabled {
		kind = fudger.KindDistance
	}
	if kind != s.kind {
		logging.Infow(ctx, "Coarse location: strategy switched", "from", s.kind, "to", kind)
		s.kind = kind
	}

	s.applied = snap
}

func (s *CoarseLocationService) current() fudger.Obfuscator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind == fudger.KindDistance {
		return s.distance
	}
	return s.geodp
}

// Obfuscate coarsens one fix with the active strategy.
func (s *CoarseLocationService) Obfuscate(fine fix.Fix) fix.Fix {
	return s.current().Obfuscate(fine)
}

// ObfuscateBatch coarsens a batch with the active strategy. The strategy is
// chosen once for the whole batch.
func (s *CoarseLocationService) ObfuscateBatch(fine fix.Batch) fix.Batch {
	return s.current().ObfuscateBatch(fine)
}

// Describe summarises the active configuration for display.
func (s *CoarseLocationService) Describe() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind == fudger.KindDistance {
		return fmt.Sprintf("distance: %s", settings.DistanceSummary(s.distance.DistanceKm()))
	}
	return fmt.Sprintf("geodp: accuracy %.0f m (epsilon %.5f /m)", s.geodp.Accuracy(), s.geodp.Epsilon())
}
