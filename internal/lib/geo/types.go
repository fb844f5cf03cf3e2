package geo

// Point represents a geographic coordinate
type Point struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

const (
	// MetersPerDegreeAtEquator is the equirectangular approximation used for
	// every meters to degrees conversion. Not geodesically exact; good enough
	// at obfuscation granularity.
	MetersPerDegreeAtEquator = 111_000

	// MaxLatitude keeps fixes off the exact poles where cos(lat) == 0.
	MaxLatitude = 90.0 - (1.0 / MetersPerDegreeAtEquator)

	// MinCosLatitude floors |cos(lat)| in longitude conversions so fixes near
	// the poles do not produce unbounded longitude deltas.
	MinCosLatitude = 1e-6

	// earthRadius in meters, used by the haversine distance
	earthRadius = 6371000
)
