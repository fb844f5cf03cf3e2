// Package fix defines the geographic fix handed to and returned by the
// obfuscation engine.
package fix

import (
	"time"

	"github.com/dpup/locfudge/internal/lib/geo"
)

// Fix is one reported position. Optional motion and altitude fields are nil
// when absent. Values are passed and returned by value; the engine never
// mutates a caller's Fix.
type Fix struct {
	Provider  string    `json:"provider,omitempty"`
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`

	// Accuracy is the reported horizontal accuracy radius in meters
	Accuracy float64 `json:"accuracy_m"`

	Bearing  *float64 `json:"bearing_deg,omitempty"`
	Speed    *float64 `json:"speed_mps,omitempty"`
	Altitude *float64 `json:"altitude_m,omitempty"`

	// Extras is an opaque extension bag
	Extras map[string]any `json:"extras,omitempty"`
}

// Point returns the fix coordinates.
func (f Fix) Point() geo.Point {
	return geo.Point{Latitude: f.Latitude, Longitude: f.Longitude}
}

// WithPoint returns a copy of f moved to p.
func (f Fix) WithPoint(p geo.Point) Fix {
	f.Latitude = p.Latitude
	f.Longitude = p.Longitude
	return f
}

// Stripped returns a copy of f without bearing, speed, altitude or extras.
// Those fields carry route and identity detail that must not survive
// coarsening.
func (f Fix) Stripped() Fix {
	f.Bearing = nil
	f.Speed = nil
	f.Altitude = nil
	f.Extras = nil
	return f
}

// HasMetadata reports whether any strippable field is present.
func (f Fix) HasMetadata() bool {
	return f.Bearing != nil || f.Speed != nil || f.Altitude != nil || len(f.Extras) > 0
}

// Batch is an ordered sequence of fixes from one sensor read. Order is
// chronological and must be preserved.
type Batch []Fix

// Map applies fn to every fix in order and returns a new batch.
func (b Batch) Map(fn func(Fix) Fix) Batch {
	if b == nil {
		return nil
	}
	out := make(Batch, len(b))
	for i, f := range b {
		out[i] = fn(f)
	}
	return out
}

// Points returns the coordinates of every fix in order.
func (b Batch) Points() []geo.Point {
	points := make([]geo.Point, len(b))
	for i, f := range b {
		points[i] = f.Point()
	}
	return points
}

// Float returns a pointer to v, for populating optional fields.
func Float(v float64) *float64 {
	return &v
}
