package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/apex.report/internal/units"
)

// chartReferenceLap renders the stored reference lap's speed trace as a
// line chart (HTML). A debugging endpoint for checking the reference a
// delta session is running against.
func (s *Server) chartReferenceLap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		http.Error(w, "No lap store configured", http.StatusNotFound)
		return
	}
	name := s.trackParam(r)
	if name == "" {
		http.Error(w, "No track active; pass ?track=", http.StatusBadRequest)
		return
	}

	lap, err := s.db.ReferenceLap(r.Context(), name)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load reference lap: %v", err), http.StatusInternalServerError)
		return
	}
	if lap == nil || len(lap.Samples) == 0 {
		http.Error(w, "No reference lap stored", http.StatusNotFound)
		return
	}

	u := s.unitsParam(r)
	xAxis := make([]string, len(lap.Samples))
	speeds := make([]opts.LineData, len(lap.Samples))
	for i, sample := range lap.Samples {
		xAxis[i] = fmt.Sprintf("%.0f", sample.Position.Distance)
		speeds[i] = opts.LineData{Value: units.ConvertSpeed(sample.GPS.SpeedMps, u)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Reference Lap", Theme: "dark", Width: "1200px", Height: "500px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Reference lap, %s", name),
			Subtitle: fmt.Sprintf("lap %d, %.3fs, speed in %s", lap.Number, lap.Duration.Seconds(), u),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("speed (%s)", u)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("speed", speeds, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	renderChart(w, line)
}

// chartCurvature renders the active track's signed curvature profile,
// with the detected corner spans in the subtitle.
func (s *Server) chartCurvature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	trk := s.engine.Track()
	if trk == nil {
		http.Error(w, "No track active", http.StatusNotFound)
		return
	}

	curv := trk.CurvatureProfile()
	xAxis := make([]string, len(curv))
	data := make([]opts.LineData, len(curv))
	for i, k := range curv {
		xAxis[i] = fmt.Sprintf("%.0f", trk.Centerline[i].Distance)
		data[i] = opts.LineData{Value: k}
	}

	corners := s.engine.Corners()
	subtitle := fmt.Sprintf("%d corners detected", len(corners))

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Track Curvature", Theme: "dark", Width: "1200px", Height: "500px",
		}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Curvature, %s", trk.Name), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "curvature (1/m), left positive"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("curvature", data)

	renderChart(w, line)
}

type chartRenderer interface {
	Render(w io.Writer) error
}

func renderChart(w http.ResponseWriter, c chartRenderer) {
	var buf bytes.Buffer
	if err := c.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
