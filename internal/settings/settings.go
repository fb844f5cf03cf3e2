// Package settings persists the user's location privacy choices as named
// integer values and turns them into engine configuration snapshots.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Setting names. Values are stored as decimal integers.
const (
	FakeLocationEnabled  = "fake_location_enabled"
	FakeLocationDistance = "fake_location_distance"
	CoarseAccuracy       = "coarse_accuracy_m"
)

const (
	// DefaultDistanceKm is reported when no distance has been stored.
	DefaultDistanceKm = 10

	// MaxDistanceKm bounds custom distances to roughly the equator length.
	MaxDistanceKm = 40000
)

// DistancePresets are the distances offered without custom entry.
var DistancePresets = []int{10, 100, 500}

var (
	ErrEmptyInput      = errors.New("input required")
	ErrInvalidDistance = errors.New("distance must be a number between 0 and 40000 km")
	ErrInvalidAccuracy = errors.New("accuracy must be a positive number of meters")
)

// Store is a named-value store for integer settings. GetInt returns def when
// the name is missing or its stored value is not an integer.
type Store interface {
	GetInt(ctx context.Context, name string, def int) (int, error)
	PutInt(ctx context.Context, name string, value int) error
}

// Snapshot is one consistent read of every setting the engine consumes.
type Snapshot struct {
	FakeLocationEnabled bool `json:"fake_location_enabled"`
	DistanceKm          int  `json:"distance_km"`
	AccuracyMeters      int  `json:"accuracy_m"`
}

// Load reads a snapshot, falling back to defaults for unset values.
func Load(ctx context.Context, store Store, defaults Snapshot) (Snapshot, error) {
	enabledDefault := 0
	if defaults.FakeLocationEnabled {
		enabledDefault = 1
	}

	enabled, err := store.GetInt(ctx, FakeLocationEnabled, enabledDefault)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", FakeLocationEnabled, err)
	}
	distance, err := store.GetInt(ctx, FakeLocationDistance, defaults.DistanceKm)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", FakeLocationDistance, err)
	}
	accuracy, err := store.GetInt(ctx, CoarseAccuracy, defaults.AccuracyMeters)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", CoarseAccuracy, err)
	}

	return Snapshot{
		FakeLocationEnabled: enabled == 1,
		DistanceKm:          distance,
		AccuracyMeters:      accuracy,
	}, nil
}

// ParseDistance accepts a preset or a custom distance in kilometers.
// Custom values may be decimal and are rounded up to whole kilometers.
func ParseDistance(input string) (int, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return 0, ErrEmptyInput
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDistance, raw)
	}
	if value < 0 || value > MaxDistanceKm {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDistance, raw)
	}
	return int(math.Ceil(value)), nil
}

// SetDistance parses input and stores it as the fake location distance.
func SetDistance(ctx context.Context, store Store, input string) (int, error) {
	km, err := ParseDistance(input)
	if err != nil {
		return 0, err
	}
	if err := store.PutInt(ctx, FakeLocationDistance, km); err != nil {
		return 0, fmt.Errorf("failed to store distance: %w", err)
	}
	return km, nil
}

// SetFakeLocationEnabled stores the enable flag.
func SetFakeLocationEnabled(ctx context.Context, store Store, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	if err := store.PutInt(ctx, FakeLocationEnabled, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", FakeLocationEnabled, err)
	}
	return nil
}

// SetAccuracy stores the coarse accuracy radius in meters.
func SetAccuracy(ctx context.Context, store Store, meters int) error {
	if meters <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAccuracy, meters)
	}
	if err := store.PutInt(ctx, CoarseAccuracy, meters); err != nil {
		return fmt.Errorf("failed to store %s: %w", CoarseAccuracy, err)
	}
	return nil
}

// DistanceSummary renders a distance the way the settings screen lists it.
func DistanceSummary(km int) string {
	if slices.Contains(DistancePresets, km) {
		return fmt.Sprintf("%d km", km)
	}
	return fmt.Sprintf("%d km (custom)", km)
}
