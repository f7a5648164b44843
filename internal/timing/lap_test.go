package timing

import (
	"testing"
	"time"

	"github.com/banshee-data/apex.report/internal/track"
)

func TestLapFinalize(t *testing.T) {
	lap := newLap(3, testBase)
	if lap.ID == "" {
		t.Error("lap has no id")
	}
	for i, speed := range []float64{18, 22, 26, 22} {
		at := time.Duration(i) * 100 * time.Millisecond
		lap.addSample(Sample{
			GPS:      planarFix(float64(i)*2, 0, at, speed, 90),
			Position: track.Position{Distance: float64(i) * 2},
		})
	}
	lap.finalize(testBase.Add(95 * time.Second))

	if !lap.Complete {
		t.Error("Complete = false after finalize")
	}
	if lap.Duration != 95*time.Second {
		t.Errorf("Duration = %s, want 95s", lap.Duration)
	}
	if lap.MaxSpeedMps != 26 {
		t.Errorf("MaxSpeedMps = %f, want 26", lap.MaxSpeedMps)
	}
	if lap.AvgSpeedMps != 22 {
		t.Errorf("AvgSpeedMps = %f, want 22", lap.AvgSpeedMps)
	}
}

func TestLapElapsed(t *testing.T) {
	lap := newLap(1, testBase)
	if got := lap.Elapsed(testBase.Add(1500 * time.Millisecond)); got != 1500*time.Millisecond {
		t.Errorf("Elapsed = %s, want 1.5s", got)
	}
}

func TestLapFinalizeNoSamples(t *testing.T) {
	lap := newLap(1, testBase)
	lap.finalize(testBase.Add(time.Second))
	if lap.MaxSpeedMps != 0 || lap.AvgSpeedMps != 0 {
		t.Errorf("speeds = %f/%f for empty lap, want 0/0", lap.MaxSpeedMps, lap.AvgSpeedMps)
	}
}
