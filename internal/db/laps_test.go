package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/timing"
	"github.com/banshee-data/apex.report/internal/track"
)

var testStart = time.Date(2026, 6, 6, 10, 0, 0, 0, time.UTC)

// completedLap builds a finished lap of the given duration with a tiny
// sample trace.
func completedLap(number int, duration time.Duration) *timing.Lap {
	start := testStart.Add(time.Duration(number) * time.Minute)
	lap := &timing.Lap{
		ID:          uuid.NewString(),
		Number:      number,
		StartTime:   start,
		EndTime:     start.Add(duration),
		Duration:    duration,
		MaxSpeedMps: 42.5,
		AvgSpeedMps: 31.2,
		Complete:    true,
	}
	for i := 0; i < 3; i++ {
		at := start.Add(time.Duration(i) * 100 * time.Millisecond)
		lap.Samples = append(lap.Samples, timing.Sample{
			GPS:      gps.Point{Timestamp: at, Lat: 43.8, Lon: -87.99, SpeedMps: 30, HasFix: true},
			Position: track.Position{Distance: float64(i) * 3, Timestamp: at},
		})
	}
	return lap
}

func testSectors() []time.Duration {
	return []time.Duration{
		31 * time.Second,
		33 * time.Second,
		31*time.Second + 500*time.Millisecond,
	}
}

func TestRecordLapTracksBest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	isBest, err := db.RecordLap(ctx, "road-america", completedLap(1, 95*time.Second), testSectors())
	require.NoError(t, err)
	require.True(t, isBest, "first lap is always a new best")

	isBest, err = db.RecordLap(ctx, "road-america", completedLap(2, 97*time.Second), testSectors())
	require.NoError(t, err)
	require.False(t, isBest, "slower lap reported as best")

	isBest, err = db.RecordLap(ctx, "road-america", completedLap(3, 94*time.Second), testSectors())
	require.NoError(t, err)
	require.True(t, isBest, "faster lap not reported as best")

	best, ok, err := db.BestLapDuration(ctx, "road-america")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 94*time.Second, best)
}

func TestBestLapDurationEmptyTrack(t *testing.T) {
	db := newTestDB(t)
	_, ok, err := db.BestLapDuration(context.Background(), "nowhere")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRecordLapRejectsIncomplete(t *testing.T) {
	db := newTestDB(t)
	lap := completedLap(1, 90*time.Second)
	lap.Complete = false
	_, err := db.RecordLap(context.Background(), "road-america", lap, nil)
	require.Error(t, err)
}

func TestLapsListingNewestFirst(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := completedLap(1, 95*time.Second)
	second := completedLap(2, 93*time.Second)
	for _, lap := range []*timing.Lap{first, second} {
		_, err := db.RecordLap(ctx, "road-america", lap, testSectors())
		require.NoError(t, err)
	}
	_, err := db.RecordLap(ctx, "elsewhere", completedLap(1, 80*time.Second), nil)
	require.NoError(t, err)

	laps, err := db.Laps(ctx, "road-america", 10)
	require.NoError(t, err)
	require.Len(t, laps, 2)
	require.Equal(t, second.ID, laps[0].ID, "newest lap first")
	require.Equal(t, first.ID, laps[1].ID)
	require.Equal(t, 93*time.Second, laps[0].Duration)
	require.Equal(t, 93.0, laps[0].DurationSec)
	require.Equal(t, 3, laps[0].SampleCount)
	require.Equal(t, "road-america", laps[0].TrackName)
	require.True(t, second.StartTime.Equal(laps[0].StartTime), "start time round trip")
}

func TestSectorTimesRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	lap := completedLap(1, 95*time.Second)
	_, err := db.RecordLap(ctx, "road-america", lap, testSectors())
	require.NoError(t, err)

	sectors, err := db.SectorTimes(ctx, lap.ID)
	require.NoError(t, err)
	require.Equal(t, testSectors(), sectors)
}

func TestReferenceLapRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ref, err := db.ReferenceLap(ctx, "road-america")
	require.NoError(t, err)
	require.Nil(t, ref, "reference lap on empty track")

	lap := completedLap(1, 95*time.Second)
	require.NoError(t, db.SaveReferenceLap(ctx, "road-america", lap))

	ref, err = db.ReferenceLap(ctx, "road-america")
	require.NoError(t, err)
	require.NotNil(t, ref)
	require.Equal(t, lap.ID, ref.ID)
	require.Equal(t, lap.Duration, ref.Duration)
	require.Len(t, ref.Samples, len(lap.Samples), "sample trace lost")
	require.Equal(t, lap.Samples[1].Position.Distance, ref.Samples[1].Position.Distance)

	// A faster lap replaces the stored reference.
	faster := completedLap(2, 93*time.Second)
	require.NoError(t, db.SaveReferenceLap(ctx, "road-america", faster))
	ref, err = db.ReferenceLap(ctx, "road-america")
	require.NoError(t, err)
	require.Equal(t, faster.ID, ref.ID)
}

func TestCornerRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rec := func(lapNumber, cornerID int, minSpeed float64) timing.CornerSpeedRecord {
		return timing.CornerSpeedRecord{
			CornerID:          cornerID,
			LapID:             uuid.NewString(),
			LapNumber:         lapNumber,
			MinSpeedMps:       minSpeed,
			MinSpeedDistance:  410,
			EntrySpeedMps:     minSpeed + 8,
			ExitSpeedMps:      minSpeed + 10,
			AvgSpeedMps:       minSpeed + 4,
			PeakLateralG:      1.4,
			PeakLongitudinalG: -0.9,
			PeakYawRateDps:    38,
			PeakYawAccelDps2:  120,
		}
	}

	require.NoError(t, db.RecordCornerSpeeds(ctx, "road-america", []timing.CornerSpeedRecord{
		rec(1, 1, 24), rec(1, 2, 41),
	}))
	require.NoError(t, db.RecordCornerSpeeds(ctx, "road-america", []timing.CornerSpeedRecord{
		rec(2, 1, 26), rec(2, 2, 39),
	}))
	require.NoError(t, db.RecordCornerSpeeds(ctx, "road-america", nil), "empty batch")

	records, err := db.CornerRecords(ctx, "road-america", 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 26.0, records[0].MinSpeedMps, "fastest minimum first")
	require.Equal(t, 2, records[0].LapNumber)

	best, err := db.BestCornerRecords(ctx, "road-america")
	require.NoError(t, err)
	require.Len(t, best, 2)
	require.Equal(t, 1, best[0].CornerID)
	require.Equal(t, 26.0, best[0].MinSpeedMps)
	require.Equal(t, 2, best[1].CornerID)
	require.Equal(t, 41.0, best[1].MinSpeedMps)
}
