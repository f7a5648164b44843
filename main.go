package main

import (
	"context"
	"embed"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/apex.report/internal/api"
	"github.com/banshee-data/apex.report/internal/config"
	"github.com/banshee-data/apex.report/internal/db"
	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/snapshot"
	"github.com/banshee-data/apex.report/internal/timing"
	"github.com/banshee-data/apex.report/internal/track"
	"github.com/banshee-data/apex.report/internal/units"
	"github.com/banshee-data/apex.report/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode    = flag.Bool("dev", false, "Run in dev mode (fixture GPS, local static files)")
	listen     = flag.String("listen", ":8080", "Listen address")
	gpsPort    = flag.String("gps-port", "/dev/ttyACM0", "GPS serial device")
	gpsBaud    = flag.Int("gps-baud", 9600, "GPS serial baud rate")
	fixture    = flag.String("fixture", "fixtures/gps.nmea", "NMEA fixture file for dev mode")
	trackFile  = flag.String("track", "", "Track definition JSON (omit for auto-detection)")
	dbFile     = flag.String("db", "laps.db", "Lap database path (empty disables persistence)")
	configFile = flag.String("config", "", "Tuning config JSON (omit for built-in defaults)")
	detector   = flag.String("detector", "", "Corner detector override: threshold, asc, curvefinder, hybrid")
	speedUnits = flag.String("units", units.MPH, "Display units: mps, mph, kmph, kph")
)

func main() {
	flag.Parse()

	log.Printf("apex.report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("Invalid units %q; valid: %s", *speedUnits, units.GetValidUnitsString())
	}

	var tuning *config.TuningConfig
	if *configFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	} else {
		tuning = config.MustLoadDefaultConfig()
	}

	var source gps.Source
	if *devMode {
		var err error
		source, err = gps.NewFixtureSource(*fixture, tuning.GetTickInterval(), true)
		if err != nil {
			log.Fatalf("Failed to open GPS fixture: %v", err)
		}
	} else {
		var err error
		source, err = gps.OpenSerialSource(*gpsPort, *gpsBaud)
		if err != nil {
			log.Fatalf("Failed to open GPS receiver: %v", err)
		}
	}
	defer source.Close()

	var database *db.DB
	if *dbFile != "" {
		var err error
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
	}

	fixes := snapshot.New[gps.Point](snapshot.DefaultDepth)
	engineCfg := timing.ConfigFromTuning(tuning)
	if *detector != "" {
		// Fail fast on a bad strategy name rather than at track load.
		if _, err := track.NewDetector(*detector, engineCfg.Detector); err != nil {
			log.Fatalf("Invalid detector: %v", err)
		}
		engineCfg.DetectorStrategy = *detector
	}

	// A nil *db.DB must stay a nil interface, or the engine would call
	// through it.
	var engine *timing.Engine
	if database != nil {
		engine = timing.NewEngine(engineCfg, database, database, fixes)
	} else {
		engine = timing.NewEngine(engineCfg, nil, nil, fixes)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *trackFile != "" {
		t, err := track.Load(*trackFile)
		if err != nil {
			log.Fatalf("Failed to load track: %v", err)
		}
		if err := engine.SetTrack(ctx, t); err != nil {
			log.Fatalf("Failed to set track: %v", err)
		}
		if database != nil {
			if err := database.UpsertTrack(ctx, t); err != nil {
				log.Printf("Failed to register track %q: %v", t.Name, err)
			}
		}
		log.Printf("Track set: %s (%.0fm, %d corners)", t.Name, t.Length, len(engine.Corners()))
	} else {
		log.Print("No track given; waiting for auto-detection")
	}

	var wg sync.WaitGroup

	// GPS acquisition worker: reads the receiver and publishes fixes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := source.Run(ctx, fixes); err != nil && err != context.Canceled {
			log.Printf("GPS source stopped: %v", err)
		}
		log.Print("GPS routine terminated")
	}()

	// Timing worker: polls the freshest fix each tick and publishes
	// result snapshots.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Timing engine stopped: %v", err)
		}
		log.Print("timing routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		apiServer := api.NewServer(engine, database, *speedUnits)
		mux.Handle("/api/", apiServer.ServeMux())

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticHandler = http.FileServer(http.FS(staticFiles))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
