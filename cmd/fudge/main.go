package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/locfudge/internal/clients/nmea"
	"github.com/dpup/locfudge/internal/config"
	"github.com/dpup/locfudge/internal/lib/export"
	"github.com/dpup/locfudge/internal/lib/fix"
	"github.com/dpup/locfudge/internal/lib/fudger"
	"github.com/dpup/locfudge/internal/lib/geo"
	"github.com/dpup/locfudge/internal/services"
	"github.com/dpup/locfudge/internal/settings"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "point":
		handlePoint()
	case "track":
		handleTrack()
	case "settings":
		handleSettings()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// engine bundles what every subcommand needs.
type engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *services.CoarseLocationService
}

func newEngine(configPath string, overrides map[string]any) *engine {
	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}

	service, err := services.NewCoarseLocationService(cfg.Engine, fudger.WithLogger(logger))
	if err != nil {
		log.Fatalf("Error creating coarse location service: %v", err)
	}

	return &engine{cfg: cfg, logger: logger, service: service}
}

func (e *engine) openStore(dbPath string) *settings.SQLiteStore {
	if dbPath == "" {
		dbPath = e.cfg.Settings.Path
	}
	store, err := settings.OpenSQLite(dbPath)
	if err != nil {
		log.Fatalf("Error opening settings database: %v", err)
	}
	return store
}

func handlePoint() {
	fs := flag.NewFlagSet("point", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of the precise fix")
	lng := fs.Float64("lng", 0, "Longitude of the precise fix")
	accuracy := fs.Float64("accuracy", 5, "Accuracy of the precise fix in meters")
	strategy := fs.String("strategy", "", "Obfuscation strategy: distance or geodp (default from config)")
	configPath := fs.String("config", "", "Path to YAML config file")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  fudge point --lat 38.0675 --lng -120.5436")
		fmt.Println("  fudge point --lat 38.0675 --lng -120.5436 --strategy distance")
		os.Exit(1)
	}

	overrides := map[string]any{}
	if *strategy != "" {
		overrides["engine.strategy"] = *strategy
	}
	e := newEngine(*configPath, overrides)
	defer e.logger.Sync()

	fine := fix.Fix{
		Provider:  "cli",
		Time:      time.Now(),
		Latitude:  *lat,
		Longitude: *lng,
		Accuracy:  *accuracy,
	}
	coarse := e.service.Obfuscate(fine)

	moved, err := geo.PointToPoint(fine.Point(), coarse.Point())
	if err != nil {
		log.Fatalf("Error calculating displacement: %v", err)
	}

	fmt.Printf("Coarse location (%s):\n", e.service.Describe())
	fmt.Printf("  Fine:   (%.6f, %.6f) ±%.0f m\n", fine.Latitude, fine.Longitude, fine.Accuracy)
	fmt.Printf("  Coarse: (%.6f, %.6f) ±%.0f m\n", coarse.Latitude, coarse.Longitude, coarse.Accuracy)
	fmt.Printf("  Moved:  %.2f meters (%.2f km, %.2f miles)\n",
		moved, moved/1000, moved*0.000621371)
}

type trackPoint struct {
	Fine   fix.Fix `json:"fine"`
	Coarse fix.Fix `json:"coarse"`
}

func handleTrack() {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	nmeaPath := fs.String("nmea", "", "Path to an NMEA 0183 log")
	batchSize := fs.Int("batch", 10, "Fixes per sensor batch")
	format := fs.String("format", "json", "Output format: json, kml or polyline")
	dbPath := fs.String("db", "", "Settings database to apply before obfuscating (optional)")
	configPath := fs.String("config", "", "Path to YAML config file")

	fs.Parse(os.Args[2:])

	if *nmeaPath == "" {
		fmt.Println("Example usage:")
		fmt.Println("  fudge track --nmea drive.nmea --format kml > drive.kml")
		fmt.Println("  fudge track --nmea drive.nmea --db locfudge.db --format polyline")
		os.Exit(1)
	}

	ctx := context.Background()
	e := newEngine(*configPath, nil)
	defer e.logger.Sync()

	if *dbPath != "" {
		store := e.openStore(*dbPath)
		defer store.Close()

		watcher := services.NewSettingsWatcher(store, e.service, e.cfg.Settings.PollInterval)
		if err := watcher.Poll(ctx); err != nil {
			log.Fatalf("Error applying settings: %v", err)
		}
	}

	file, err := os.Open(*nmeaPath)
	if err != nil {
		log.Fatalf("Error opening NMEA log: %v", err)
	}
	defer file.Close()

	reader := nmea.NewReader(file, e.logger)
	var fine, coarse fix.Batch
	for {
		batch, err := reader.ReadBatch(*batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatalf("Error reading NMEA log: %v", err)
		}
		fine = append(fine, batch...)
		coarse = append(coarse, e.service.ObfuscateBatch(batch)...)
	}

	meanMoved, err := geo.MeanDistance(fine.Points(), coarse.Points())
	if err != nil {
		log.Fatalf("Error calculating displacement: %v", err)
	}

	e.logger.Info("Track obfuscated",
		zap.Int("fixes", len(fine)),
		zap.Float64("mean_displacement_m", meanMoved),
		zap.Int("skipped_lines", reader.Skipped()),
		zap.String("strategy", e.service.Describe()))

	switch *format {
	case "json":
		points := make([]trackPoint, len(fine))
		for i := range fine {
			points[i] = trackPoint{Fine: fine[i], Coarse: coarse[i]}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(points); err != nil {
			log.Fatalf("Error writing JSON: %v", err)
		}
	case "kml":
		name := strings.TrimSuffix(filepath.Base(*nmeaPath), filepath.Ext(*nmeaPath))
		if err := export.WriteKML(os.Stdout, name, fine, coarse); err != nil {
			log.Fatalf("Error writing KML: %v", err)
		}
	case "polyline":
		fmt.Printf("Fine:   %s\n", geo.EncodePolyline(fine.Points()))
		fmt.Printf("Coarse: %s\n", geo.EncodePolyline(coarse.Points()))
	default:
		log.Fatalf("Unknown format: %s", *format)
	}
}

func handleSettings() {
	if len(os.Args) < 3 {
		printSettingsUsage()
		os.Exit(1)
	}
	action := os.Args[2]

	fs := flag.NewFlagSet("settings", flag.ExitOnError)
	dbPath := fs.String("db", "", "Settings database (default from config)")
	configPath := fs.String("config", "", "Path to YAML config file")

	fs.Parse(os.Args[3:])
	args := fs.Args()

	ctx := context.Background()
	e := newEngine(*configPath, nil)
	defer e.logger.Sync()

	store := e.openStore(*dbPath)
	defer store.Close()

	switch action {
	case "show":
		snap, err := settings.Load(ctx, store, e.service.Defaults())
		if err != nil {
			log.Fatalf("Error reading settings: %v", err)
		}
		e.service.Apply(ctx, snap)

		fmt.Printf("Settings:\n")
		fmt.Printf("  %s: %t\n", settings.FakeLocationEnabled, snap.FakeLocationEnabled)
		fmt.Printf("  %s: %s\n", settings.FakeLocationDistance, settings.DistanceSummary(snap.DistanceKm))
		fmt.Printf("  %s: %d m\n", settings.CoarseAccuracy, snap.AccuracyMeters)
		fmt.Printf("  Active: %s\n", e.service.Describe())
	case "set-distance":
		if len(args) != 1 {
			log.Fatalf("Usage: fudge settings set-distance [--db FILE] KM")
		}
		km, err := settings.SetDistance(ctx, store, args[0])
		if err != nil {
			log.Fatalf("Error setting distance: %v", err)
		}
		fmt.Printf("Distance set to %s\n", settings.DistanceSummary(km))
	case "enable", "disable":
		enabled := action == "enable"
		if err := settings.SetFakeLocationEnabled(ctx, store, enabled); err != nil {
			log.Fatalf("Error updating settings: %v", err)
		}
		fmt.Printf("Fake location enabled: %t\n", enabled)
	case "set-accuracy":
		if len(args) != 1 {
			log.Fatalf("Usage: fudge settings set-accuracy [--db FILE] METERS")
		}
		meters, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			log.Fatalf("Invalid accuracy %q: %v", args[0], err)
		}
		if err := settings.SetAccuracy(ctx, store, meters); err != nil {
			log.Fatalf("Error setting accuracy: %v", err)
		}
		fmt.Printf("Coarse accuracy set to %d m\n", meters)
	default:
		fmt.Printf("Unknown settings action: %s\n\n", action)
		printSettingsUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("fudge - coarse location tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  fudge <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  point       Obfuscate a single fix")
	fmt.Println("  track       Obfuscate an NMEA log batch by batch")
	fmt.Println("  settings    Show or change stored settings")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("Configuration is read from --config and LOCFUDGE__SECTION__KEY environment variables.")
}

func printSettingsUsage() {
	fmt.Println("Usage:")
	fmt.Println("  fudge settings show [--db FILE]")
	fmt.Println("  fudge settings set-distance [--db FILE] KM")
	fmt.Println("  fudge settings enable|disable [--db FILE]")
	fmt.Println("  fudge settings set-accuracy [--db FILE] METERS")
}
