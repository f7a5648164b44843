// Package api is the onboard HTTP surface: live timing over SSE for the
// dash display, lap and corner history as JSON, and rendered debug
// charts.
package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/apex.report/internal/db"
	"github.com/banshee-data/apex.report/internal/httputil"
	"github.com/banshee-data/apex.report/internal/timing"
	"github.com/banshee-data/apex.report/internal/units"
	"github.com/banshee-data/apex.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	engine *timing.Engine
	db     *db.DB
	units  string
}

// NewServer wires the API over the timing engine and the lap store. db
// may be nil when running without persistence; history endpoints then
// return 404.
func NewServer(engine *timing.Engine, database *db.DB, speedUnits string) *Server {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}
	return &Server{
		engine: engine,
		db:     database,
		units:  speedUnits,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/snapshot", s.showSnapshot)
	mux.HandleFunc("/api/live", s.streamLive)
	mux.HandleFunc("/api/laps", s.listLaps)
	mux.HandleFunc("/api/sectors", s.listSectors)
	mux.HandleFunc("/api/corners", s.listCorners)
	mux.HandleFunc("/api/corner_records", s.listCornerRecords)
	mux.HandleFunc("/api/corner_bests", s.listCornerBests)
	mux.HandleFunc("/api/corner_session_bests", s.listSessionBests)
	mux.HandleFunc("/api/tracks", s.listTracks)
	mux.HandleFunc("/api/charts/lap", s.chartReferenceLap)
	mux.HandleFunc("/api/charts/curvature", s.chartCurvature)
	return mux
}

// requireGet rejects non-GET methods.
func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return false
	}
	return true
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	config := map[string]interface{}{
		"units":       s.units,
		"persistence": s.db != nil,
	}
	httputil.WriteJSONOK(w, config)
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	status := map[string]interface{}{
		"state":   s.engine.State(),
		"units":   s.units,
		"version": version.Version,
	}
	if t := s.engine.Track(); t != nil {
		status["track_name"] = t.Name
		status["track_length"] = t.Length
		status["corners"] = len(s.engine.Corners())
	}
	snap := s.engine.LatestSnapshot()
	status["total_laps"] = snap.TotalLaps
	status["has_fix"] = snap.HasFix
	httputil.WriteJSONOK(w, status)
}
