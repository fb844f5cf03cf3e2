package fudger

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dpup/locfudge/internal/lib/fix"
	"github.com/dpup/locfudge/internal/lib/geo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// scriptedRand replays values, then repeats fallback.
type scriptedRand struct {
	mu       sync.Mutex
	values   []float64
	next     int
	fallback float64
}

func script(values ...float64) *scriptedRand {
	return &scriptedRand{values: values, fallback: 0.5}
}

func (r *scriptedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next < len(r.values) {
		v := r.values[r.next]
		r.next++
		return v
	}
	return r.fallback
}

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func fineFix(lat, lng float64) fix.Fix {
	return fix.Fix{
		Provider:  "gps",
		Time:      time.Date(2025, 12, 6, 12, 34, 56, 0, time.UTC),
		Latitude:  lat,
		Longitude: lng,
		Accuracy:  5,
		Bearing:   fix.Float(45),
		Speed:     fix.Float(3.2),
		Altitude:  fix.Float(120),
		Extras:    map[string]any{"satellites": 11},
	}
}

func assertValidCoarse(t *testing.T, coarse fix.Fix) {
	t.Helper()
	assert.False(t, math.IsNaN(coarse.Latitude) || math.IsInf(coarse.Latitude, 0), "latitude must be finite")
	assert.False(t, math.IsNaN(coarse.Longitude) || math.IsInf(coarse.Longitude, 0), "longitude must be finite")
	assert.LessOrEqual(t, math.Abs(coarse.Latitude), geo.MaxLatitude)
	assert.GreaterOrEqual(t, coarse.Longitude, -180.0)
	assert.Less(t, coarse.Longitude, 180.0)
	assert.False(t, coarse.HasMetadata(), "bearing, speed, altitude and extras must be stripped")
}
