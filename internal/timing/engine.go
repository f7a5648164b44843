package timing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/apex.report/internal/config"
	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/snapshot"
	"github.com/banshee-data/apex.report/internal/track"
)

// State is the engine's track lifecycle state.
type State string

const (
	// StateNoTrack means no track is loaded; the engine is idle or
	// auto-detecting from the GPS position.
	StateNoTrack State = "no_track"
	// StateTrackSet means a track is loaded and timing is live.
	StateTrackSet State = "track_set"
)

// LapStore is the persistence collaborator. Failures are logged and
// absorbed; in-memory timing state continues regardless.
type LapStore interface {
	// RecordLap persists a completed lap with its sector times and
	// reports whether it is a new best for the track.
	RecordLap(ctx context.Context, trackName string, lap *Lap, sectors []time.Duration) (isNewBest bool, err error)
	// BestLapDuration returns the stored best lap for the track. The
	// second return is false when none exists.
	BestLapDuration(ctx context.Context, trackName string) (time.Duration, bool, error)
	// SaveReferenceLap persists the lap's full position trace for
	// delta comparison in later sessions.
	SaveReferenceLap(ctx context.Context, trackName string, lap *Lap) error
	// ReferenceLap loads the stored reference lap, or nil when none.
	ReferenceLap(ctx context.Context, trackName string) (*Lap, error)
	// RecordCornerSpeeds persists per-corner records for a lap.
	RecordCornerSpeeds(ctx context.Context, trackName string, records []CornerSpeedRecord) error
}

// TrackFinder resolves the nearest known track to a GPS position, for
// track auto-detection. A nil Track with nil error means nothing is in
// range.
type TrackFinder interface {
	NearestTrack(ctx context.Context, lat, lon, radiusMeters float64) (*track.Track, error)
}

// SectorSnapshot is one sector's timing in the published snapshot.
type SectorSnapshot struct {
	Time  time.Duration `json:"time"`
	Best  time.Duration `json:"best"`
	Delta float64       `json:"delta"` // seconds vs best
}

// Snapshot is the immutable per-tick result published for the render
// and API layers. Zero-valued fields mean "no data yet".
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	State     State     `json:"state"`

	TrackName   string  `json:"track_name"`
	TrackLength float64 `json:"track_length"`

	LapNumber      int           `json:"lap_number"`
	CurrentLapTime time.Duration `json:"current_lap_time"`
	BestLapTime    time.Duration `json:"best_lap_time"`
	LastLapTime    time.Duration `json:"last_lap_time"`
	LastLapDelta   float64       `json:"last_lap_delta"` // seconds vs best at completion
	TotalLaps      int           `json:"total_laps"`

	DeltaSeconds  float64       `json:"delta_seconds"`
	HasDelta      bool          `json:"has_delta"`
	PredictedTime time.Duration `json:"predicted_time"`

	Sectors       []SectorSnapshot `json:"sectors"`
	CurrentSector int              `json:"current_sector"`

	TrackPosition    float64 `json:"track_position"` // metres along centerline
	ProgressFraction float64 `json:"progress_fraction"`
	CurrentLat       float64 `json:"current_lat"`
	CurrentLon       float64 `json:"current_lon"`
	SpeedMps         float64 `json:"speed_mps"`
	HasFix           bool    `json:"has_fix"`
}

// Config carries the engine's tuning-derived parameters.
type Config struct {
	TickInterval      time.Duration
	MinLapTime        time.Duration
	SectorCount       int
	AutoDetectRadius  float64
	LookaheadSegments int
	DetectorStrategy  string
	Detector          track.DetectorConfig
}

// ConfigFromTuning builds an engine Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		TickInterval:      cfg.GetTickInterval(),
		MinLapTime:        time.Duration(cfg.GetMinLapTimeSeconds() * float64(time.Second)),
		SectorCount:       cfg.GetSectorCount(),
		AutoDetectRadius:  cfg.GetAutoDetectRadius(),
		LookaheadSegments: cfg.GetLookaheadSegments(),
		DetectorStrategy:  cfg.GetDetectorStrategy(),
		Detector:          track.DetectorConfigFromTuning(cfg),
	}
}

// Engine is the lap timing orchestrator. It owns the active track, the
// in-progress lap, and all best-lap/best-sector state; no other
// goroutine mutates them. Each tick it polls the freshest GPS fix,
// updates position and sector state, checks for a start/finish
// crossing, and publishes a result snapshot.
type Engine struct {
	cfg    Config
	store  LapStore    // may be nil (no persistence)
	finder TrackFinder // may be nil (no auto-detect)

	gpsQueue  *snapshot.Queue[gps.Point]
	Snapshots *snapshot.Queue[Snapshot]

	// Track-scoped state, rebuilt by SetTrack.
	state     State
	track     *track.Track
	tracker   *track.PositionTracker
	corners   []track.Corner
	crossings *CrossingDetector
	analyzer  *CornerAnalyzer
	delta     *DeltaCalculator

	// Lap bookkeeping, owned by the worker goroutine.
	current       *Lap
	totalLaps     int
	bestLap       time.Duration
	lastLap       time.Duration
	lastLapDelta  float64
	sectorBounds  []float64
	sectorTimes   []time.Duration
	bestSectors   []time.Duration
	currentSector int
	sectorStart   time.Time

	lastFixTime time.Time

	mu   sync.RWMutex
	last Snapshot
}

// NewEngine constructs the orchestrator. store and finder may be nil;
// the corresponding capabilities are simply absent.
func NewEngine(cfg Config, store LapStore, finder TrackFinder, gpsQueue *snapshot.Queue[gps.Point]) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     store,
		finder:    finder,
		gpsQueue:  gpsQueue,
		Snapshots: snapshot.New[Snapshot](snapshot.DefaultDepth),
		state:     StateNoTrack,
		delta:     NewDeltaCalculator(),
	}
}

// SetTrack loads a track into the engine: validates it, builds the
// position index, runs corner detection, and resets all lap state.
// Corner detection may take hundreds of milliseconds; call off the tick
// path.
func (e *Engine) SetTrack(ctx context.Context, t *track.Track) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid track: %w", err)
	}

	detector, err := track.NewDetector(e.cfg.DetectorStrategy, e.cfg.Detector)
	if err != nil {
		return err
	}
	started := time.Now()
	corners := detector.Detect(t)
	diagf("track %q: %d corners via %s in %s", t.Name, len(corners), detector.Name(), time.Since(started))

	var storedBest time.Duration
	delta := NewDeltaCalculator()
	if e.store != nil {
		if best, ok, err := e.store.BestLapDuration(ctx, t.Name); err != nil {
			opsf("loading best lap for %q: %v", t.Name, err)
		} else if ok {
			storedBest = best
		}
		if ref, err := e.store.ReferenceLap(ctx, t.Name); err != nil {
			opsf("loading reference lap for %q: %v", t.Name, err)
		} else if ref != nil {
			delta.SetReferenceLap(ref)
		}
	}

	e.mu.Lock()
	e.track = t
	e.tracker = track.NewPositionTracker(t, e.cfg.LookaheadSegments)
	e.corners = corners
	e.crossings = NewCrossingDetector(t.StartFinish, e.cfg.MinLapTime)
	e.analyzer = NewCornerAnalyzer(corners)
	e.delta = delta
	e.state = StateTrackSet
	e.resetLapStateLocked(t)
	e.bestLap = storedBest
	e.mu.Unlock()
	return nil
}

func (e *Engine) resetLapStateLocked(t *track.Track) {
	n := e.cfg.SectorCount
	if n < 1 {
		n = 3
	}
	e.sectorBounds = make([]float64, n)
	for i := range e.sectorBounds {
		e.sectorBounds[i] = t.Length * float64(i+1) / float64(n)
	}
	e.sectorTimes = make([]time.Duration, n)
	e.bestSectors = make([]time.Duration, n)
	e.current = nil
	e.totalLaps = 0
	e.bestLap = 0
	e.lastLap = 0
	e.lastLapDelta = 0
	e.currentSector = 0
}

// Track returns the active track, or nil.
func (e *Engine) Track() *track.Track {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.track
}

// Corners returns the detected corner list for the active track. The
// slice is shared read-only; callers must not modify it.
func (e *Engine) Corners() []track.Corner {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.corners
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LatestSnapshot returns the most recently published snapshot.
func (e *Engine) LatestSnapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// SessionCornerBests returns the session-best record for each corner,
// ordered by corner ID. Nil when no track is set.
func (e *Engine) SessionCornerBests() []CornerSpeedRecord {
	e.mu.RLock()
	analyzer := e.analyzer
	e.mu.RUnlock()
	if analyzer == nil {
		return nil
	}
	return analyzer.Bests()
}

// Run is the orchestrator worker loop. It polls the latest GPS fix at
// the tick cadence until the context is cancelled. A bad sample never
// terminates the loop.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	diagf("engine worker started, tick %s", interval)
	for {
		select {
		case <-ctx.Done():
			diagf("engine worker stopping: %v", ctx.Err())
			return nil
		case <-ticker.C:
			e.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one orchestrator cycle: poll the freshest fix, update
// position/lap/sector state, publish a snapshot. Exported so tests and
// replay tools can drive the engine without the wall-clock loop.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	fix, ok := e.gpsQueue.Latest()
	if !ok || !fix.HasFix || fix.Timestamp.Equal(e.lastFixTime) {
		// Missing or stale fix: skip the tick, republish last-known
		// state so consumers see the engine is alive but blind.
		e.republish(now)
		return
	}
	e.lastFixTime = fix.Timestamp

	e.mu.RLock()
	st, tracker := e.state, e.tracker
	e.mu.RUnlock()

	if st == StateNoTrack {
		e.autoDetect(ctx, fix)
		e.publish(e.buildSnapshot(now, fix, track.Position{}, false))
		return
	}

	pos, tracked := tracker.InterpolatedPosition(fix)
	if tracked {
		e.advance(ctx, fix, pos, now)
	}
	e.publish(e.buildSnapshot(now, fix, pos, tracked))
}

// advance applies one positioned fix to the lap state machine.
func (e *Engine) advance(ctx context.Context, fix gps.Point, pos track.Position, now time.Time) {
	if e.current != nil {
		e.current.addSample(Sample{GPS: fix, Position: pos})
		e.updateSector(pos, fix.Timestamp)
	}

	crossing, crossed := e.crossings.Check(fix)
	if !crossed {
		return
	}
	e.completeLap(ctx, crossing.Time)
}

// updateSector closes a sector when the position advances past its
// boundary.
func (e *Engine) updateSector(pos track.Position, ts time.Time) {
	sector := len(e.sectorBounds) - 1
	for i, bound := range e.sectorBounds {
		if pos.Distance < bound {
			sector = i
			break
		}
	}
	if sector == e.currentSector {
		return
	}
	// Only forward transitions close a sector; jitter across a
	// boundary backwards is ignored.
	if sector == e.currentSector+1 {
		elapsed := ts.Sub(e.sectorStart)
		e.sectorTimes[e.currentSector] = elapsed
		if best := e.bestSectors[e.currentSector]; best == 0 || elapsed < best {
			e.bestSectors[e.currentSector] = elapsed
		}
		e.sectorStart = ts
		tracef("sector %d closed in %.3fs", e.currentSector+1, elapsed.Seconds())
	}
	e.currentSector = sector
}

// completeLap finalizes the in-progress lap at the crossing time,
// persists it, and opens the next lap. The first crossing of a session
// has no lap in progress; it just starts lap one.
func (e *Engine) completeLap(ctx context.Context, when time.Time) {
	finished := e.current
	if finished != nil {
		// Close the final sector at the interpolated crossing time.
		elapsed := when.Sub(e.sectorStart)
		last := len(e.sectorTimes) - 1
		e.sectorTimes[last] = elapsed
		if best := e.bestSectors[last]; best == 0 || elapsed < best {
			e.bestSectors[last] = elapsed
		}

		finished.finalize(when)
		e.totalLaps++
		e.lastLap = finished.Duration
		if e.bestLap > 0 {
			e.lastLapDelta = (finished.Duration - e.bestLap).Seconds()
		}

		isBest := e.bestLap == 0 || finished.Duration < e.bestLap
		if isBest {
			e.bestLap = finished.Duration
			e.delta.SetReferenceLap(finished)
		}
		diagf("lap %d complete: %.3fs (best %.3fs)", finished.Number,
			finished.Duration.Seconds(), e.bestLap.Seconds())

		e.persistLap(ctx, finished, isBest)
	}

	number := e.totalLaps + 1
	e.mu.Lock()
	e.current = newLap(number, when)
	e.mu.Unlock()
	e.currentSector = 0
	e.sectorStart = when
	for i := range e.sectorTimes {
		e.sectorTimes[i] = 0
	}
}

// persistLap records the lap, its corner records, and (when it is the
// new best) the reference trace. Store failures are logged, never
// propagated: in-memory timing continues.
func (e *Engine) persistLap(ctx context.Context, lap *Lap, isBest bool) {
	records := e.analyzer.AnalyzeLap(lap)

	if e.store == nil {
		return
	}
	name := e.track.Name
	if _, err := e.store.RecordLap(ctx, name, lap, e.sectorTimes); err != nil {
		opsf("recording lap %d: %v", lap.Number, err)
	}
	if len(records) > 0 {
		if err := e.store.RecordCornerSpeeds(ctx, name, records); err != nil {
			opsf("recording corner speeds for lap %d: %v", lap.Number, err)
		}
	}
	if isBest {
		if err := e.store.SaveReferenceLap(ctx, name, lap); err != nil {
			opsf("saving reference lap %d: %v", lap.Number, err)
		}
	}
}

// autoDetect tries to resolve a track from the current position.
func (e *Engine) autoDetect(ctx context.Context, fix gps.Point) {
	if e.finder == nil {
		return
	}
	t, err := e.finder.NearestTrack(ctx, fix.Lat, fix.Lon, e.cfg.AutoDetectRadius)
	if err != nil {
		opsf("track auto-detect: %v", err)
		return
	}
	if t == nil {
		return
	}
	diagf("auto-detected track %q at (%.5f, %.5f)", t.Name, fix.Lat, fix.Lon)
	if err := e.SetTrack(ctx, t); err != nil {
		opsf("loading auto-detected track %q: %v", t.Name, err)
	}
}

func (e *Engine) buildSnapshot(now time.Time, fix gps.Point, pos track.Position, tracked bool) Snapshot {
	e.mu.RLock()
	st, trk := e.state, e.track
	e.mu.RUnlock()

	snap := Snapshot{
		Timestamp:    now,
		State:        st,
		TotalLaps:    e.totalLaps,
		BestLapTime:  e.bestLap,
		LastLapTime:  e.lastLap,
		LastLapDelta: e.lastLapDelta,
		CurrentLat:   fix.Lat,
		CurrentLon:   fix.Lon,
		SpeedMps:     fix.SpeedMps,
		HasFix:       fix.HasFix,
	}
	if trk != nil {
		snap.TrackName = trk.Name
		snap.TrackLength = trk.Length
	}
	if tracked {
		snap.TrackPosition = pos.Distance
		snap.ProgressFraction = pos.ProgressFraction
	}
	if e.current != nil {
		snap.LapNumber = e.current.Number
		snap.CurrentLapTime = fix.Timestamp.Sub(e.current.StartTime)
		snap.CurrentSector = e.currentSector

		if tracked && e.delta.HasReference() {
			if d, ok := e.delta.Calculate(pos, snap.CurrentLapTime); ok {
				snap.DeltaSeconds = d.TimeDelta.Seconds()
				snap.PredictedTime = d.PredictedLapTime
				snap.HasDelta = true
			}
		}
	}
	snap.Sectors = make([]SectorSnapshot, len(e.sectorTimes))
	for i := range e.sectorTimes {
		s := SectorSnapshot{Time: e.sectorTimes[i], Best: e.bestSectors[i]}
		if s.Time > 0 && s.Best > 0 {
			s.Delta = (s.Time - s.Best).Seconds()
		}
		snap.Sectors[i] = s
	}
	return snap
}

func (e *Engine) publish(snap Snapshot) {
	e.mu.Lock()
	e.last = snap
	e.mu.Unlock()
	e.Snapshots.Publish(snap)
}

// republish re-emits the last-known snapshot with a fresh timestamp, so
// consumers can distinguish a stalled feed from a stalled engine.
func (e *Engine) republish(now time.Time) {
	e.mu.Lock()
	snap := e.last
	snap.Timestamp = now
	snap.HasFix = false
	e.last = snap
	e.mu.Unlock()
	e.Snapshots.Publish(snap)
}
