// Command track-plot renders a track definition to a PNG: centerline,
// boundaries when present, start/finish line, and the corners found by
// the chosen detector with their apexes marked.
//
// Usage:
//
//	go run ./cmd/tools/track-plot -track tracks/road-america.json -out track.png
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/track"
)

func main() {
	trackFile := flag.String("track", "", "track definition JSON (required)")
	out := flag.String("out", "track.png", "output PNG path")
	strategy := flag.String("detector", "hybrid", "corner detector: threshold, asc, curvefinder, hybrid")
	size := flag.Float64("size", 20, "plot size in cm")
	flag.Parse()

	if *trackFile == "" {
		log.Fatal("Error: -track flag is required")
	}

	trk, err := track.Load(*trackFile)
	if err != nil {
		log.Fatalf("Failed to load track: %v", err)
	}

	detector, err := track.NewDetector(*strategy, track.DefaultDetectorConfig())
	if err != nil {
		log.Fatalf("Failed to build detector: %v", err)
	}
	corners := detector.Detect(trk)
	log.Printf("%s: %.0fm, %d corners (%s)", trk.Name, trk.Length, len(corners), *strategy)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%.0f m)", trk.Name, trk.Length)
	p.X.Label.Text = "east (m)"
	p.Y.Label.Text = "north (m)"

	// Anchor the local plane at the start/finish centre.
	lat0 := trk.StartFinish.CenterLat
	lon0 := trk.StartFinish.CenterLon

	for _, boundary := range [][]track.Point{trk.OuterBoundary, trk.InnerBoundary} {
		if len(boundary) < 2 {
			continue
		}
		line, err := plotter.NewLine(toXYs(boundary, lat0, lon0))
		if err != nil {
			log.Fatalf("Failed to plot boundary: %v", err)
		}
		line.Color = color.Gray{Y: 128}
		p.Add(line)
	}

	centerline, err := plotter.NewLine(toXYs(trk.Centerline, lat0, lon0))
	if err != nil {
		log.Fatalf("Failed to plot centerline: %v", err)
	}
	centerline.Color = color.RGBA{B: 255, A: 255}
	p.Add(centerline)
	p.Legend.Add("centerline", centerline)

	sf, err := plotter.NewLine(toXYs([]track.Point{trk.StartFinish.P1, trk.StartFinish.P2}, lat0, lon0))
	if err != nil {
		log.Fatalf("Failed to plot start/finish: %v", err)
	}
	sf.Color = color.RGBA{G: 180, A: 255}
	sf.Width = vg.Points(2)
	p.Add(sf)
	p.Legend.Add("start/finish", sf)

	if len(corners) > 0 {
		apexes := make(plotter.XYs, len(corners))
		for i, c := range corners {
			pt := trk.Centerline[c.ApexIndex]
			x, y := geo.Project(pt.Lat, pt.Lon, lat0, lon0)
			apexes[i] = plotter.XY{X: x, Y: y}
		}
		scatter, err := plotter.NewScatter(apexes)
		if err != nil {
			log.Fatalf("Failed to plot apexes: %v", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 255, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(4)
		p.Add(scatter)
		p.Legend.Add("apex", scatter)

		for _, c := range corners {
			log.Printf("  %s: entry %.0fm apex %.0fm exit %.0fm, min radius %.1fm, %.0f deg %s",
				c.Name, c.EntryDistance, c.ApexDistance, c.ExitDistance,
				c.MinRadius, c.TotalAngle, c.Direction)
		}
	}

	if err := p.Save(vg.Length(*size)*vg.Centimeter, vg.Length(*size)*vg.Centimeter, *out); err != nil {
		log.Fatalf("Failed to save plot: %v", err)
	}
	log.Printf("wrote %s", *out)
}

func toXYs(points []track.Point, lat0, lon0 float64) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		x, y := geo.Project(pt.Lat, pt.Lon, lat0, lon0)
		xys[i] = plotter.XY{X: x, Y: y}
	}
	return xys
}
