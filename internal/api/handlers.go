package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/apex.report/internal/httputil"
	"github.com/banshee-data/apex.report/internal/timing"
	"github.com/banshee-data/apex.report/internal/units"
)

// liveInterval is how often the SSE stream polls the engine. Snapshots
// are published every engine tick; polling at the same cadence keeps
// the dash one frame behind at most.
const liveInterval = 100 * time.Millisecond

// liveSnapshot wraps the engine snapshot with the speed converted to
// the configured display units. Raw fields stay in m/s.
type liveSnapshot struct {
	timing.Snapshot
	SpeedDisplay float64 `json:"speed_display"`
	SpeedUnits   string  `json:"speed_units"`
}

func (s *Server) liveView(snap timing.Snapshot, u string) liveSnapshot {
	return liveSnapshot{
		Snapshot:     snap,
		SpeedDisplay: units.ConvertSpeed(snap.SpeedMps, u),
		SpeedUnits:   u,
	}
}

// unitsParam returns the display units for a request: a valid ?units=
// query value, or the server default.
func (s *Server) unitsParam(r *http.Request) string {
	if u := r.URL.Query().Get("units"); units.IsValid(u) {
		return u
	}
	return s.units
}

// trackParam resolves the track name for history queries: the ?track=
// query parameter, or the engine's active track.
func (s *Server) trackParam(r *http.Request) string {
	if name := r.URL.Query().Get("track"); name != "" {
		return name
	}
	if t := s.engine.Track(); t != nil {
		return t.Name
	}
	return ""
}

func (s *Server) showSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	httputil.WriteJSONOK(w, s.liveView(s.engine.LatestSnapshot(), s.unitsParam(r)))
}

func (s *Server) streamLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(liveInterval)
	defer ticker.Stop()

	u := s.unitsParam(r)
	var lastSent time.Time
	for {
		select {
		case <-ticker.C:
			snap := s.engine.LatestSnapshot()
			if snap.Timestamp.IsZero() || snap.Timestamp.Equal(lastSent) {
				continue
			}
			lastSent = snap.Timestamp
			payload, err := json.Marshal(s.liveView(snap, u))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) listLaps(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "No lap store configured")
		return
	}
	name := s.trackParam(r)
	if name == "" {
		httputil.BadRequest(w, "No track active; pass ?track=")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	laps, err := s.db.Laps(r.Context(), name, limit)
	if err != nil {
		httputil.InternalServerError(w,
			fmt.Sprintf("Failed to retrieve laps: %v", err))
		return
	}

	// Apply unit conversion to the speed aggregates.
	u := s.unitsParam(r)
	for i := range laps {
		laps[i].MaxSpeedMps = units.ConvertSpeed(laps[i].MaxSpeedMps, u)
		laps[i].AvgSpeedMps = units.ConvertSpeed(laps[i].AvgSpeedMps, u)
	}
	httputil.WriteJSONOK(w, laps)
}

func (s *Server) listSectors(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "No lap store configured")
		return
	}
	lapID := r.URL.Query().Get("lap_id")
	if lapID == "" {
		httputil.BadRequest(w, "Missing 'lap_id' parameter")
		return
	}

	sectors, err := s.db.SectorTimes(r.Context(), lapID)
	if err != nil {
		httputil.InternalServerError(w,
			fmt.Sprintf("Failed to retrieve sectors: %v", err))
		return
	}

	type sectorAPI struct {
		Number  int     `json:"number"`
		Seconds float64 `json:"seconds"`
	}
	out := make([]sectorAPI, len(sectors))
	for i, d := range sectors {
		out[i] = sectorAPI{Number: i + 1, Seconds: d.Seconds()}
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) listCorners(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	corners := s.engine.Corners()
	if corners == nil {
		httputil.NotFound(w, "No track active")
		return
	}
	httputil.WriteJSONOK(w, corners)
}

// listSessionBests serves the engine's in-memory session bests: the
// fastest way each corner has been taken since the track was set. The
// all-time records live in the store, behind listCornerBests.
func (s *Server) listSessionBests(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	records := s.engine.SessionCornerBests()
	if records == nil {
		httputil.NotFound(w, "No track active")
		return
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) listCornerRecords(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "No lap store configured")
		return
	}
	name := s.trackParam(r)
	if name == "" {
		httputil.BadRequest(w, "No track active; pass ?track=")
		return
	}
	cornerID, err := strconv.Atoi(r.URL.Query().Get("corner"))
	if err != nil || cornerID < 1 {
		httputil.BadRequest(w, "Invalid 'corner' parameter")
		return
	}

	records, err := s.db.CornerRecords(r.Context(), name, cornerID, 50)
	if err != nil {
		httputil.InternalServerError(w,
			fmt.Sprintf("Failed to retrieve corner records: %v", err))
		return
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) listCornerBests(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "No lap store configured")
		return
	}
	name := s.trackParam(r)
	if name == "" {
		httputil.BadRequest(w, "No track active; pass ?track=")
		return
	}

	records, err := s.db.BestCornerRecords(r.Context(), name)
	if err != nil {
		httputil.InternalServerError(w,
			fmt.Sprintf("Failed to retrieve corner bests: %v", err))
		return
	}
	httputil.WriteJSONOK(w, records)
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}
	if s.db == nil {
		httputil.NotFound(w, "No lap store configured")
		return
	}
	names, err := s.db.TrackNames(r.Context())
	if err != nil {
		httputil.InternalServerError(w,
			fmt.Sprintf("Failed to retrieve tracks: %v", err))
		return
	}
	if names == nil {
		names = []string{}
	}
	httputil.WriteJSONOK(w, names)
}
