package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/apex.report/internal/gps"
	"github.com/banshee-data/apex.report/internal/units"
)

func TestChartReferenceLap(t *testing.T) {
	database := testDB(t)
	engine, _ := testEngine(t, database)
	mux := NewServer(engine, database, units.MPH).ServeMux()
	ctx := context.Background()

	if rec := get(t, mux, "/api/charts/lap?track=road-america"); rec.Code != http.StatusNotFound {
		t.Errorf("chart without reference = %d, want 404", rec.Code)
	}

	if err := database.SaveReferenceLap(ctx, "road-america", completedLap(1, 95*time.Second)); err != nil {
		t.Fatalf("SaveReferenceLap: %v", err)
	}

	rec := get(t, mux, "/api/charts/lap?track=road-america")
	if rec.Code != http.StatusOK {
		t.Fatalf("chart status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	if !strings.Contains(rec.Body.String(), "echarts") {
		t.Error("rendered chart does not reference echarts")
	}
}

func TestChartCurvature(t *testing.T) {
	engine, _ := testEngine(t, nil)
	mux := NewServer(engine, nil, units.MPS).ServeMux()

	if rec := get(t, mux, "/api/charts/curvature"); rec.Code != http.StatusNotFound {
		t.Errorf("curvature chart without track = %d, want 404", rec.Code)
	}

	if err := engine.SetTrack(context.Background(), testTrack()); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	rec := get(t, mux, "/api/charts/curvature")
	if rec.Code != http.StatusOK {
		t.Fatalf("curvature chart status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pit-straight") {
		t.Error("chart title missing track name")
	}
}

func TestStreamLive(t *testing.T) {
	engine, q := testEngine(t, nil)
	if err := engine.SetTrack(context.Background(), testTrack()); err != nil {
		t.Fatalf("SetTrack: %v", err)
	}
	mux := NewServer(engine, nil, units.MPS).ServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	q.Publish(gps.Point{Timestamp: testStart, Lat: 43.797, Lon: -87.9888, SpeedMps: 15, HasFix: true})
	engine.Tick(context.Background(), testStart)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/live", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/live: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	if data == "" {
		t.Fatalf("no data event received: %v", scanner.Err())
	}
	if !strings.Contains(data, `"speed_mps":15`) {
		t.Errorf("live payload missing speed: %s", data)
	}
}
