// Package fudger coarsens precise fixes before they reach lower-trust
// consumers.
//
// Two strategies share the Obfuscator contract. DistanceFudger displaces
// fixes by a configured distance in a slowly rotating direction.
// GeoDPFudger adds planar Laplace noise calibrated to a target accuracy
// radius. Both hold their sampled vector fixed for a refresh window so
// that repeated queries cannot average the offset away, and both are safe
// for concurrent use.
package fudger

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/locfudge/internal/lib/fix"
)

// Obfuscator turns fine fixes into coarse ones. Implementations never mutate
// their input. A batch call makes one refresh decision and applies one
// vector to every element, in order.
type Obfuscator interface {
	Obfuscate(fine fix.Fix) fix.Fix
	ObfuscateBatch(fine fix.Batch) fix.Batch
}

// Kind names an obfuscation strategy.
type Kind string

const (
	KindDistance Kind = "distance"
	KindGeoDP    Kind = "geodp"
)

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDistance:
		return KindDistance, nil
	case KindGeoDP:
		return KindGeoDP, nil
	default:
		return "", fmt.Errorf("unknown obfuscation strategy %q", s)
	}
}

// New builds the strategy for kind. magnitude is a distance in kilometers
// for KindDistance (rounded up to whole km) and an accuracy radius in meters
// for KindGeoDP. Out-of-range magnitudes are coerced, not rejected.
func New(kind Kind, magnitude float64, opts ...Option) (Obfuscator, error) {
	switch kind {
	case KindDistance:
		km := 0
		if !math.IsNaN(magnitude) && magnitude > 0 && magnitude < math.MaxInt32 {
			km = int(math.Ceil(magnitude))
		}
		return NewDistanceFudger(km, opts...), nil
	case KindGeoDP:
		return NewGeoDPFudger(magnitude, opts...), nil
	default:
		return nil, fmt.Errorf("unknown obfuscation strategy %q", kind)
	}
}

// Option customises a strategy.
type Option func(*options)

type options struct {
	clock       Clock
	rnd         Rand
	logger      *zap.Logger
	interval    time.Duration
	scope       Scope
	state       *OffsetState
	memoEntries int
	minAccuracy float64
}

func defaultOptions() options {
	return options{
		clock:       SystemClock{},
		logger:      zap.NewNop(),
		scope:       ScopeInstance,
		minAccuracy: MinAccuracyMeters,
	}
}

// WithClock sets the monotonic time source used for refresh scheduling.
func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

// WithRand sets the random source. Draws happen under the strategy's
// state lock so the source need not be safe for concurrent use.
func WithRand(r Rand) Option { return func(o *options) { o.rnd = r } }

// WithLogger sets the logger for refresh and reconfiguration events.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithRefreshInterval overrides how long a sampled vector stays in use.
// Under ScopeGlobal it reconfigures the shared state, so the most recently
// constructed fudger's interval applies to every global fudger.
func WithRefreshInterval(d time.Duration) Option { return func(o *options) { o.interval = d } }

// WithScope selects per-instance or process-wide directional offsets. A
// ScopeGlobal fudger applies its WithRefreshInterval and WithRand to the
// shared state; when they are omitted the shared state keeps its settings.
func WithScope(s Scope) Option { return func(o *options) { o.scope = s } }

// WithOffsetState shares an explicit OffsetState between DistanceFudgers.
// It takes precedence over WithScope; the state's own interval and random
// source apply.
func WithOffsetState(s *OffsetState) Option { return func(o *options) { o.state = s } }

// WithMemo enables a fingerprint-keyed memo of up to n coarse fixes per
// refresh window.
func WithMemo(n int) Option { return func(o *options) { o.memoEntries = n } }

// WithMinAccuracy overrides the GeoDP accuracy floor in meters.
func WithMinAccuracy(m float64) Option { return func(o *options) { o.minAccuracy = m } }

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock{}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}
