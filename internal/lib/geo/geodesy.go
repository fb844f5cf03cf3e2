package geo

import "math"

// ClampLatitude clamps lat into [-MaxLatitude, MaxLatitude].
// Non-finite values map to 0.
func ClampLatitude(lat float64) float64 {
	if math.IsNaN(lat) {
		return 0
	}
	if lat > MaxLatitude {
		return MaxLatitude
	}
	if lat < -MaxLatitude {
		return -MaxLatitude
	}
	return lat
}

// WrapLongitude reduces lon modulo 360 into [-180, 180).
// Non-finite values map to 0.
func WrapLongitude(lon float64) float64 {
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		return 0
	}
	lon = math.Mod(lon, 360.0)
	if lon >= 180.0 {
		lon -= 360.0
	}
	if lon < -180.0 {
		lon += 360.0
	}
	// lon + 360 can round up to exactly 180
	if lon >= 180.0 {
		lon -= 360.0
	}
	return lon
}

// MetersToDegreesLatitude converts a north/south distance to degrees.
func MetersToDegreesLatitude(meters float64) float64 {
	return meters / MetersPerDegreeAtEquator
}

// MetersToDegreesLongitude converts an east/west distance to degrees at the
// given latitude. |cos(lat)| is floored at MinCosLatitude.
func MetersToDegreesLongitude(meters, latitude float64) float64 {
	cosLat := math.Cos(latitude * math.Pi / 180)
	if math.Abs(cosLat) < MinCosLatitude {
		cosLat = math.Copysign(MinCosLatitude, cosLat)
	}
	return meters / MetersPerDegreeAtEquator / cosLat
}

// Displace moves p by northMeters and eastMeters. The latitude delta is
// computed at the original latitude and the longitude delta at the new one,
// since degrees of longitude per meter shrink toward the poles. The result
// is always clamped and wrapped.
func Displace(p Point, northMeters, eastMeters float64) Point {
	baseLat := ClampLatitude(p.Latitude)
	baseLon := WrapLongitude(p.Longitude)

	if !isFinite(northMeters) {
		northMeters = 0
	}
	if !isFinite(eastMeters) {
		eastMeters = 0
	}

	lat := ClampLatitude(baseLat + MetersToDegreesLatitude(northMeters))
	lon := WrapLongitude(baseLon + MetersToDegreesLongitude(eastMeters, lat))
	return Point{Latitude: lat, Longitude: lon}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
