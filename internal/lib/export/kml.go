// Package export renders fine and coarse tracks for visual comparison.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/twpayne/go-kml/v2"

	"github.com/dpup/locfudge/internal/lib/fix"
)

// WriteKML writes a document with one folder per track. Each track is drawn
// as a line; coarse fixes also get a placemark carrying their reported
// accuracy so the uncertainty can be inspected per point.
func WriteKML(w io.Writer, name string, fine, coarse fix.Batch) error {
	fineFolder := []kml.Element{kml.Name("Fine")}
	if len(fine) > 0 {
		fineFolder = append(fineFolder, trackPlacemark("Fine track", fine))
	}

	coarseFolder := []kml.Element{kml.Name("Coarse")}
	if len(coarse) > 0 {
		coarseFolder = append(coarseFolder, trackPlacemark("Coarse track", coarse))
	}
	for i, f := range coarse {
		coarseFolder = append(coarseFolder, kml.Placemark(
			kml.Name(pointName(i, f)),
			kml.Description(fmt.Sprintf("accuracy %.0f m", f.Accuracy)),
			kml.Point(kml.Coordinates(coordinate(f))),
		))
	}

	doc := kml.KML(kml.Document(
		kml.Name(name),
		kml.Folder(fineFolder...),
		kml.Folder(coarseFolder...),
	))
	if err := doc.WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("failed to write KML: %w", err)
	}
	return nil
}

func trackPlacemark(name string, b fix.Batch) kml.Element {
	coords := make([]kml.Coordinate, len(b))
	for i, f := range b {
		coords[i] = coordinate(f)
	}
	return kml.Placemark(
		kml.Name(name),
		kml.LineString(
			kml.Tessellate(true),
			kml.Coordinates(coords...),
		),
	)
}

func coordinate(f fix.Fix) kml.Coordinate {
	return kml.Coordinate{Lon: f.Longitude, Lat: f.Latitude}
}

func pointName(i int, f fix.Fix) string {
	if f.Time.IsZero() {
		return fmt.Sprintf("#%d", i+1)
	}
	return f.Time.UTC().Format(time.RFC3339)
}
