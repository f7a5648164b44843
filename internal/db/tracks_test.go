package db

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/apex.report/internal/track"
)

// registryTrack builds a minimal valid track anchored at the given
// start/finish position.
func registryTrack(name string, lat, lon float64) *track.Track {
	t := &track.Track{Name: name}
	for i := 0; i < 6; i++ {
		t.Centerline = append(t.Centerline, track.Point{
			Lat: lat,
			Lon: lon + float64(i)*0.0001,
		})
	}
	t.StartFinish = track.StartFinishLine{
		P1: track.Point{Lat: lat - 0.00005, Lon: lon},
		P2: track.Point{Lat: lat + 0.00005, Lon: lon},
	}
	t.ComputeDistances()
	return t
}

func TestTrackRegistryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	missing, err := db.TrackByName(ctx, "nowhere")
	require.NoError(t, err)
	require.Nil(t, missing)

	trk := registryTrack("gingerman", 42.408, -86.140)
	require.NoError(t, db.UpsertTrack(ctx, trk))

	loaded, err := db.TrackByName(ctx, "gingerman")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	if diff := cmp.Diff(trk, loaded); diff != "" {
		t.Errorf("track round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertTrackRejectsInvalid(t *testing.T) {
	db := newTestDB(t)
	require.Error(t, db.UpsertTrack(context.Background(), &track.Track{Name: "empty"}))
	require.Error(t, db.UpsertTrack(context.Background(), nil))
}

func TestUpsertTrackReplaces(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertTrack(ctx, registryTrack("gingerman", 42.408, -86.140)))
	moved := registryTrack("gingerman", 43.798, -87.990)
	require.NoError(t, db.UpsertTrack(ctx, moved))

	names, err := db.TrackNames(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"gingerman"}, names)

	loaded, err := db.TrackByName(ctx, "gingerman")
	require.NoError(t, err)
	require.InDelta(t, 43.798, loaded.StartFinish.CenterLat, 1e-9)
}

func TestNearestTrack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertTrack(ctx, registryTrack("gingerman", 42.408, -86.140)))
	require.NoError(t, db.UpsertTrack(ctx, registryTrack("road-america", 43.798, -87.990)))

	// A position just off Road America's start line resolves to it.
	found, err := db.NearestTrack(ctx, 43.800, -87.992, 5000)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "road-america", found.Name)

	// Nothing within radius: both tracks are over 100 km away.
	found, err = db.NearestTrack(ctx, 41.0, -83.0, 5000)
	require.NoError(t, err)
	require.Nil(t, found)
}
