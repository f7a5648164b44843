package timing

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/snapshot"
	"github.com/banshee-data/apex.report/internal/track"
)

type fakeStore struct {
	laps        []*Lap
	sectors     [][]time.Duration
	cornerRecs  [][]CornerSpeedRecord
	refs        []*Lap
	failRecord  bool
	storedBest  time.Duration
	storedRef   *Lap
}

func (s *fakeStore) RecordLap(_ context.Context, _ string, lap *Lap, sectors []time.Duration) (bool, error) {
	if s.failRecord {
		return false, errors.New("disk full")
	}
	s.laps = append(s.laps, lap)
	s.sectors = append(s.sectors, append([]time.Duration(nil), sectors...))
	return true, nil
}

func (s *fakeStore) BestLapDuration(context.Context, string) (time.Duration, bool, error) {
	return s.storedBest, s.storedBest > 0, nil
}

func (s *fakeStore) SaveReferenceLap(_ context.Context, _ string, lap *Lap) error {
	s.refs = append(s.refs, lap)
	return nil
}

func (s *fakeStore) ReferenceLap(context.Context, string) (*Lap, error) {
	return s.storedRef, nil
}

func (s *fakeStore) RecordCornerSpeeds(_ context.Context, _ string, recs []CornerSpeedRecord) error {
	s.cornerRecs = append(s.cornerRecs, recs)
	return nil
}

type fakeFinder struct {
	track *track.Track
	calls int
}

func (f *fakeFinder) NearestTrack(context.Context, float64, float64, float64) (*track.Track, error) {
	f.calls++
	return f.track, nil
}

func testEngineConfig() Config {
	return Config{
		TickInterval:      100 * time.Millisecond,
		MinLapTime:        10 * time.Second,
		SectorCount:       3,
		AutoDetectRadius:  5000,
		LookaheadSegments: 2,
		DetectorStrategy:  "threshold",
		Detector:          track.DefaultDetectorConfig(),
	}
}

// driveLaps drives the engine around the track at a constant speed for
// the given duration, feeding one fix per 100 ms tick. The car starts
// 6 m before the start/finish line, so the first crossing fires at
// about 0.3 s and each subsequent crossing completes one lap.
func driveLaps(t *testing.T, e *Engine, q *snapshot.Queue[gps.Point], trk *track.Track, speed float64, total time.Duration) {
	t.Helper()
	ctx := context.Background()
	start := trk.Length - 6
	ticks := int(total / (100 * time.Millisecond))
	for k := 0; k <= ticks; k++ {
		at := time.Duration(k) * 100 * time.Millisecond
		lat, lon := driveAt(trk, start+speed*at.Seconds())
		q.Publish(gps.Point{
			Timestamp: testBase.Add(at),
			Lat:       lat,
			Lon:       lon,
			SpeedMps:  speed,
			HasFix:    true,
		})
		e.Tick(ctx, testBase.Add(at))
	}
}

func TestEngineEndToEndLapTiming(t *testing.T) {
	trk := loopTrack(76.44)
	store := &fakeStore{}
	q := snapshot.New[gps.Point](snapshot.DefaultDepth)
	e := NewEngine(testEngineConfig(), store, nil, q)

	if err := e.SetTrack(context.Background(), trk); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	if got := e.State(); got != StateTrackSet {
		t.Fatalf("state = %s, want %s", got, StateTrackSet)
	}
	if corners := e.Corners(); len(corners) != 4 {
		t.Fatalf("detected %d corners, want 4", len(corners))
	}

	// 2.3 laps at 20 m/s: crossings near 20 s and 40 s complete one
	// full lap each after the out-lap.
	driveLaps(t, e, q, trk, 20, 47*time.Second)

	wantLap := trk.Length / 20
	if len(store.laps) != 2 {
		t.Fatalf("recorded %d laps, want 2", len(store.laps))
	}
	for _, lap := range store.laps {
		if math.Abs(lap.Duration.Seconds()-wantLap) > 0.02 {
			t.Errorf("lap %d duration = %.4fs, want %.4f +/- 0.02", lap.Number, lap.Duration.Seconds(), wantLap)
		}
		if math.Abs(lap.Duration.Seconds()-20.0) > 0.1 {
			t.Errorf("lap %d duration = %.4fs, want about 20.0", lap.Number, lap.Duration.Seconds())
		}
		if math.Abs(lap.AvgSpeedMps-20) > 0.1 || math.Abs(lap.MaxSpeedMps-20) > 0.1 {
			t.Errorf("lap %d speeds avg=%.2f max=%.2f, want 20", lap.Number, lap.AvgSpeedMps, lap.MaxSpeedMps)
		}
	}

	snap := e.LatestSnapshot()
	if snap.TotalLaps != 2 {
		t.Errorf("TotalLaps = %d, want 2", snap.TotalLaps)
	}
	if snap.LapNumber != 3 {
		t.Errorf("LapNumber = %d, want 3 (third lap in progress)", snap.LapNumber)
	}
	if math.Abs(snap.BestLapTime.Seconds()-wantLap) > 0.02 {
		t.Errorf("BestLapTime = %.4fs, want %.4f", snap.BestLapTime.Seconds(), wantLap)
	}
	if snap.TrackName != "test-loop" {
		t.Errorf("TrackName = %q, want test-loop", snap.TrackName)
	}
	if !snap.HasFix {
		t.Error("HasFix = false on live feed")
	}

	// The first completed lap became the reference; the identical
	// second lap should sit on a near-zero delta by its end.
	if !snap.HasDelta {
		t.Error("HasDelta = false with a reference lap set")
	} else if math.Abs(snap.DeltaSeconds) > 0.25 {
		t.Errorf("DeltaSeconds = %.3f on even pace, want about 0", snap.DeltaSeconds)
	}

	// All three sectors timed on the completed laps.
	for i, s := range store.sectors[1] {
		if s <= 0 {
			t.Errorf("sector %d time missing on lap 2", i+1)
		}
	}
	if len(store.refs) == 0 {
		t.Error("no reference lap persisted for the best lap")
	}
	if len(store.cornerRecs) == 0 || len(store.cornerRecs[0]) != 4 {
		t.Errorf("corner records = %v, want 4 per lap", store.cornerRecs)
	}

	bests := e.SessionCornerBests()
	if len(bests) != 4 {
		t.Fatalf("session corner bests = %d records, want 4", len(bests))
	}
	for i, b := range bests {
		if b.CornerID != i+1 {
			t.Errorf("session best %d: corner ID = %d, want %d", i, b.CornerID, i+1)
		}
	}
}

func TestEngineSurvivesStoreFailure(t *testing.T) {
	trk := loopTrack(76.44)
	store := &fakeStore{failRecord: true}
	q := snapshot.New[gps.Point](snapshot.DefaultDepth)
	e := NewEngine(testEngineConfig(), store, nil, q)
	if err := e.SetTrack(context.Background(), trk); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	driveLaps(t, e, q, trk, 20, 42*time.Second)

	// Persistence failed every lap but timing carried on in memory.
	snap := e.LatestSnapshot()
	if snap.TotalLaps != 2 {
		t.Errorf("TotalLaps = %d, want 2 despite store failures", snap.TotalLaps)
	}
	if snap.BestLapTime <= 0 {
		t.Error("BestLapTime missing despite store failures")
	}
}

func TestEngineMissingFixRepublishes(t *testing.T) {
	trk := loopTrack(76.44)
	q := snapshot.New[gps.Point](snapshot.DefaultDepth)
	e := NewEngine(testEngineConfig(), nil, nil, q)
	if err := e.SetTrack(context.Background(), trk); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	ctx := context.Background()
	lat, lon := driveAt(trk, 50)
	q.Publish(gps.Point{Timestamp: testBase, Lat: lat, Lon: lon, SpeedMps: 20, HasFix: true})
	e.Tick(ctx, testBase)
	withFix := e.LatestSnapshot()

	// No new fix arrives: the engine republishes last-known state.
	e.Tick(ctx, testBase.Add(200*time.Millisecond))
	stale := e.LatestSnapshot()
	if stale.TrackPosition != withFix.TrackPosition {
		t.Errorf("TrackPosition changed on missing fix: %f -> %f", withFix.TrackPosition, stale.TrackPosition)
	}
	if stale.HasFix {
		t.Error("HasFix = true on republished stale snapshot")
	}
	if !stale.Timestamp.After(withFix.Timestamp) {
		t.Error("republished snapshot timestamp not advanced")
	}

	// A fix without GPS lock is treated the same way.
	q.Publish(gps.Point{Timestamp: testBase.Add(300 * time.Millisecond), HasFix: false})
	e.Tick(ctx, testBase.Add(300*time.Millisecond))
	if e.LatestSnapshot().HasFix {
		t.Error("HasFix = true after no-lock fix")
	}
}

func TestEngineAutoDetect(t *testing.T) {
	trk := loopTrack(76.44)
	finder := &fakeFinder{track: trk}
	q := snapshot.New[gps.Point](snapshot.DefaultDepth)
	e := NewEngine(testEngineConfig(), nil, finder, q)

	if got := e.State(); got != StateNoTrack {
		t.Fatalf("initial state = %s, want %s", got, StateNoTrack)
	}

	lat, lon := geo.Unproject(10, 0, testAnchorLat, testAnchorLon)
	q.Publish(gps.Point{Timestamp: testBase, Lat: lat, Lon: lon, SpeedMps: 0, HasFix: true})
	e.Tick(context.Background(), testBase)

	if finder.calls == 0 {
		t.Fatal("track finder never queried")
	}
	if got := e.State(); got != StateTrackSet {
		t.Errorf("state after auto-detect = %s, want %s", got, StateTrackSet)
	}
	if e.Track() == nil || e.Track().Name != "test-loop" {
		t.Error("auto-detected track not loaded")
	}
}

func TestEngineLoadsStoredBestAndReference(t *testing.T) {
	trk := loopTrack(76.44)
	ref := referenceLap(trk.Length, 20)
	store := &fakeStore{storedBest: 19*time.Second + 500*time.Millisecond, storedRef: ref}
	q := snapshot.New[gps.Point](snapshot.DefaultDepth)
	e := NewEngine(testEngineConfig(), store, nil, q)
	if err := e.SetTrack(context.Background(), trk); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}

	driveLaps(t, e, q, trk, 20, 22*time.Second)

	snap := e.LatestSnapshot()
	if snap.BestLapTime != store.storedBest {
		t.Errorf("BestLapTime = %s, want stored %s", snap.BestLapTime, store.storedBest)
	}
	// The stored reference is live immediately, so the very first
	// flying lap already shows a delta.
	if !snap.HasDelta {
		t.Error("HasDelta = false with stored reference lap")
	}
}
