package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-polyline"
)

// ErrInvalidCoordinate marks a point outside [-90, 90] by [-180, 180].
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// PointToPoint returns the great-circle distance in meters.
func PointToPoint(p1, p2 Point) (float64, error) {
	for _, p := range []Point{p1, p2} {
		if !isValidCoordinate(p) {
			return 0, fmt.Errorf("%w: (%g, %g)", ErrInvalidCoordinate, p.Latitude, p.Longitude)
		}
	}

	phi1, phi2 := radians(p1.Latitude), radians(p2.Latitude)
	h := haversine(phi2-phi1) +
		math.Cos(phi1)*math.Cos(phi2)*haversine(radians(p2.Longitude-p1.Longitude))

	return 2 * earthRadius * math.Asin(math.Sqrt(math.Min(h, 1))), nil
}

// MeanDistance returns the mean PointToPoint distance between pairs a[i],
// b[i]. Empty input yields 0.
func MeanDistance(a, b []Point) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("point counts differ: %d and %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	var sum float64
	for i := range a {
		d, err := PointToPoint(a[i], b[i])
		if err != nil {
			return 0, fmt.Errorf("point %d: %w", i, err)
		}
		sum += d
	}
	return sum / float64(len(a)), nil
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func haversine(theta float64) float64 {
	s := math.Sin(theta / 2)
	return s * s
}

// EncodePolyline encodes points as a Google polyline string
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline decodes Google polyline string to point sequence
func DecodePolyline(encoded string) ([]Point, error) {
	if encoded == "" {
		return nil, errors.New("encoded polyline string is empty")
	}

	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, errors.New("failed to decode polyline: " + err.Error())
	}

	points := make([]Point, len(coords))
	for i, coord := range coords {
		points[i] = Point{
			Latitude:  coord[0],
			Longitude: coord[1],
		}

		if !isValidCoordinate(points[i]) {
			return nil, errors.New("decoded polyline contains invalid coordinates")
		}
	}

	return points, nil
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
