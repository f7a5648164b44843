package track

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/gps"
)

func fixAt(lat, lon float64) gps.Point {
	return gps.Point{
		Timestamp: time.Date(2026, 5, 17, 14, 30, 0, 0, time.UTC),
		Lat:       lat,
		Lon:       lon,
		HasFix:    true,
	}
}

func planarFix(x, y float64) gps.Point {
	lat, lon := geo.Unproject(x, y, testAnchorLat, testAnchorLon)
	return fixAt(lat, lon)
}

func TestPositionAtCenterlinePoint(t *testing.T) {
	trk := squareLoopTrack()
	tracker := NewPositionTracker(trk, 2)
	if !tracker.Available() {
		t.Fatal("tracker unavailable for valid track")
	}

	target := trk.Centerline[5]
	pos, ok := tracker.Position(fixAt(target.Lat, target.Lon))
	if !ok {
		t.Fatal("Position returned not ok")
	}
	if pos.Distance != target.Distance {
		t.Errorf("Distance = %f, want exactly %f", pos.Distance, target.Distance)
	}
	if math.Abs(pos.LateralOffset) >= 0.5 {
		t.Errorf("LateralOffset = %f, want |offset| < 0.5", pos.LateralOffset)
	}
	if pos.SegmentIndex != 5 {
		t.Errorf("SegmentIndex = %d, want 5", pos.SegmentIndex)
	}
}

func TestInterpolatedPositionMidSegment(t *testing.T) {
	trk := squareLoopTrack()
	tracker := NewPositionTracker(trk, 2)

	// Halfway between points 10 and 11 on the opening straight, which
	// runs east with 2.5 m spacing.
	pos, ok := tracker.InterpolatedPosition(planarFix(10*2.5+1.25, 0))
	if !ok {
		t.Fatal("InterpolatedPosition returned not ok")
	}
	want := (trk.Centerline[10].Distance + trk.Centerline[11].Distance) / 2
	if math.Abs(pos.Distance-want) > 0.1 {
		t.Errorf("Distance = %f, want about %f", pos.Distance, want)
	}
	if pos.SegmentIndex != 10 {
		t.Errorf("SegmentIndex = %d, want 10", pos.SegmentIndex)
	}
	if math.Abs(pos.LateralOffset) > 0.05 {
		t.Errorf("LateralOffset = %f, want about 0", pos.LateralOffset)
	}
}

func TestLateralOffsetSign(t *testing.T) {
	trk := squareLoopTrack()
	tracker := NewPositionTracker(trk, 2)

	// The opening straight heads east, so south of it is to the right.
	pos, _ := tracker.InterpolatedPosition(planarFix(26.25, -1.5))
	if math.Abs(pos.LateralOffset-1.5) > 0.05 {
		t.Errorf("right-of-centerline offset = %f, want +1.5", pos.LateralOffset)
	}

	pos, _ = tracker.InterpolatedPosition(planarFix(26.25, 2.0))
	if math.Abs(pos.LateralOffset+2.0) > 0.05 {
		t.Errorf("left-of-centerline offset = %f, want -2.0", pos.LateralOffset)
	}
}

func TestProgressFraction(t *testing.T) {
	trk := squareLoopTrack()
	tracker := NewPositionTracker(trk, 2)

	target := trk.Centerline[len(trk.Centerline)/2]
	pos, _ := tracker.Position(fixAt(target.Lat, target.Lon))
	want := target.Distance / trk.Length
	if math.Abs(pos.ProgressFraction-want) > 1e-9 {
		t.Errorf("ProgressFraction = %f, want %f", pos.ProgressFraction, want)
	}
	if pos.ProgressFraction < 0 || pos.ProgressFraction > 1 {
		t.Errorf("ProgressFraction = %f out of [0,1]", pos.ProgressFraction)
	}
}

func TestPositionNearDuplicateEndpoint(t *testing.T) {
	// The square loop's last point coincides with its first, giving a
	// zero-length final segment. Lookups near it must still succeed.
	trk := squareLoopTrack()
	tracker := NewPositionTracker(trk, 3)

	pos, ok := tracker.InterpolatedPosition(planarFix(0.5, -0.5))
	if !ok {
		t.Fatal("InterpolatedPosition returned not ok near duplicate endpoint")
	}
	if math.IsNaN(pos.Distance) || math.IsNaN(pos.LateralOffset) {
		t.Errorf("NaN position near duplicate endpoint: %+v", pos)
	}
}

func TestPositionOffTrackStillResolves(t *testing.T) {
	trk := squareLoopTrack()
	tracker := NewPositionTracker(trk, 2)

	// 40 m inside the loop: far from the centerline but the lookup
	// degrades to the nearest point rather than failing.
	pos, ok := tracker.InterpolatedPosition(planarFix(50, 40))
	if !ok {
		t.Fatal("InterpolatedPosition returned not ok for off-track fix")
	}
	if pos.LateralOffset > -35 {
		t.Errorf("LateralOffset = %f, want strongly negative (left, inside the loop)", pos.LateralOffset)
	}
}

func TestPositionTrackerDegenerate(t *testing.T) {
	tracker := NewPositionTracker(degenerateTrack(), 2)
	if tracker.Available() {
		t.Fatal("tracker available for degenerate track")
	}
	if _, ok := tracker.Position(planarFix(0, 0)); ok {
		t.Error("Position ok for degenerate track")
	}
	if _, ok := tracker.InterpolatedPosition(planarFix(0, 0)); ok {
		t.Error("InterpolatedPosition ok for degenerate track")
	}
}
