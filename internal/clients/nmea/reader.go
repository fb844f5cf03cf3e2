// Package nmea reads position fixes from NMEA 0183 sentence streams, such
// as a GPS receiver log.
package nmea

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"go.uber.org/zap"

	"github.com/dpup/locfudge/internal/lib/fix"
)

// Provider is the provider name given to fixes read from NMEA.
const Provider = "gps"

// HDOPMeters converts horizontal dilution of precision to an accuracy
// radius in meters.
const HDOPMeters = 5.0

const knotsToMetersPerSecond = 0.514444

// ErrNoFix is returned by FromRMC for sentences without a valid fix.
var ErrNoFix = errors.New("sentence carries no valid fix")

// Reader yields fixes from RMC sentences, enriched by a preceding GGA
// sentence for the same time of day. Other sentence types are ignored.
type Reader struct {
	scanner *bufio.Scanner
	logger  *zap.Logger

	pending *nmea.GGA
	line    int
	skipped int
}

// NewReader creates a reader over r. A nil logger discards skip reports.
func NewReader(r io.Reader, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		scanner: bufio.NewScanner(r),
		logger:  logger.Named("nmea"),
	}
}

// Skipped returns how many non-empty lines could not be parsed or carried
// a void fix.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Next returns the next fix, or io.EOF when the stream is exhausted.
func (r *Reader) Next() (fix.Fix, error) {
	for r.scanner.Scan() {
		r.line++
		raw := strings.TrimSpace(r.scanner.Text())
		if raw == "" {
			continue
		}

		if !strings.HasPrefix(raw, "$") {
			r.skip("not a sentence", nil)
			continue
		}

		sentence, err := nmea.Parse(raw)
		if err != nil {
			r.skip("unparsable sentence", err)
			continue
		}

		switch sentence.DataType() {
		case nmea.TypeGGA:
			gga := sentence.(nmea.GGA)
			r.pending = &gga
		case nmea.TypeRMC:
			rmc := sentence.(nmea.RMC)
			gga := r.pending
			r.pending = nil

			f, err := FromRMC(rmc)
			if err != nil {
				r.skip("void fix", err)
				continue
			}
			if gga != nil && gga.Time == rmc.Time {
				f = MergeGGA(f, *gga)
			}
			return f, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return fix.Fix{}, fmt.Errorf("failed to read NMEA stream: %w", err)
	}
	return fix.Fix{}, io.EOF
}

// ReadBatch returns up to n fixes in stream order. It returns io.EOF only
// when no fixes remain.
func (r *Reader) ReadBatch(n int) (fix.Batch, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", n)
	}

	batch := make(fix.Batch, 0, n)
	for len(batch) < n {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, f)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

// ReadAll returns every remaining fix.
func (r *Reader) ReadAll() (fix.Batch, error) {
	var all fix.Batch
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, f)
	}
}

func (r *Reader) skip(reason string, err error) {
	r.skipped++
	r.logger.Debug("Skipping NMEA line",
		zap.Int("line", r.line), zap.String("reason", reason), zap.Error(err))
}

// FromRMC converts an RMC sentence to a fix. Accuracy is left at zero since
// RMC carries no precision estimate.
func FromRMC(s nmea.RMC) (fix.Fix, error) {
	if s.Validity != nmea.ValidRMC {
		return fix.Fix{}, ErrNoFix
	}
	return fix.Fix{
		Provider:  Provider,
		Time:      fixTime(s.Date, s.Time),
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Bearing:   fix.Float(s.Course),
		Speed:     fix.Float(s.Speed * knotsToMetersPerSecond),
	}, nil
}

// MergeGGA copies altitude, accuracy and receiver details from a GGA
// sentence into f. The GGA position is ignored in favour of the RMC one.
func MergeGGA(f fix.Fix, g nmea.GGA) fix.Fix {
	f.Altitude = fix.Float(g.Altitude)
	if g.HDOP > 0 {
		f.Accuracy = g.HDOP * HDOPMeters
	}

	extras := make(map[string]any, len(f.Extras)+2)
	for k, v := range f.Extras {
		extras[k] = v
	}
	extras["satellites"] = g.NumSatellites
	extras["fix_quality"] = g.FixQuality
	f.Extras = extras
	return f
}

// fixTime combines an RMC date and time in UTC. Two-digit years from 80
// onward are taken as 19xx.
func fixTime(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return time.Time{}
	}
	year := 2000 + d.YY
	if d.YY >= 80 {
		year = 1900 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
