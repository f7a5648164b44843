package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Lap timing params
	MinLapTimeSeconds *float64 `json:"min_lap_time_seconds,omitempty"`
	TickInterval      *string  `json:"tick_interval,omitempty"` // duration string like "100ms"
	SectorCount       *int     `json:"sector_count,omitempty"`
	AutoDetectRadius  *float64 `json:"auto_detect_radius_meters,omitempty"`

	// Position tracker params
	LookaheadSegments *int `json:"lookahead_segments,omitempty"`

	// Corner detection params
	DetectorStrategy       *string  `json:"detector_strategy,omitempty"` // threshold|asc|curvefinder|hybrid
	MinCornerRadius        *float64 `json:"min_corner_radius,omitempty"`
	MinCornerAngle         *float64 `json:"min_corner_angle,omitempty"`
	MergeCorners           *bool    `json:"merge_corners,omitempty"`
	CurvaturePeakThreshold *float64 `json:"curvature_peak_threshold,omitempty"`
	MinCutDistance         *float64 `json:"min_cut_distance,omitempty"`
	StraightFillDistance   *float64 `json:"straight_fill_distance,omitempty"`
	MaxStraightGap         *float64 `json:"max_straight_gap,omitempty"`

	// Circle fit params
	FitMinPoints          *int     `json:"fit_min_points,omitempty"`
	FitMaxPoints          *int     `json:"fit_max_points,omitempty"`
	FitErrorThreshold     *float64 `json:"fit_error_threshold,omitempty"`
	FitErrorIncreaseRatio *float64 `json:"fit_error_increase_ratio,omitempty"`
	MaxCornerSpan         *float64 `json:"max_corner_span,omitempty"`

	// Chicane merge params (hybrid detector)
	MaxChicaneGap    *float64 `json:"max_chicane_gap,omitempty"`
	MaxChicaneLength *float64 `json:"max_chicane_length,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.MinLapTimeSeconds != nil && *c.MinLapTimeSeconds < 0 {
		return fmt.Errorf("min_lap_time_seconds must be non-negative, got %f", *c.MinLapTimeSeconds)
	}

	if c.TickInterval != nil && *c.TickInterval != "" {
		if _, err := time.ParseDuration(*c.TickInterval); err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
	}

	if c.SectorCount != nil && *c.SectorCount < 1 {
		return fmt.Errorf("sector_count must be at least 1, got %d", *c.SectorCount)
	}

	if c.DetectorStrategy != nil {
		switch *c.DetectorStrategy {
		case "threshold", "asc", "curvefinder", "hybrid":
		default:
			return fmt.Errorf("unknown detector_strategy %q", *c.DetectorStrategy)
		}
	}

	if c.MinCornerRadius != nil && *c.MinCornerRadius <= 0 {
		return fmt.Errorf("min_corner_radius must be positive, got %f", *c.MinCornerRadius)
	}

	if c.FitMinPoints != nil && *c.FitMinPoints < 3 {
		return fmt.Errorf("fit_min_points must be at least 3, got %d", *c.FitMinPoints)
	}

	if c.FitMinPoints != nil && c.FitMaxPoints != nil && *c.FitMaxPoints < *c.FitMinPoints {
		return fmt.Errorf("fit_max_points (%d) must be >= fit_min_points (%d)",
			*c.FitMaxPoints, *c.FitMinPoints)
	}

	return nil
}

// GetMinLapTimeSeconds returns the min_lap_time_seconds value or the default.
func (c *TuningConfig) GetMinLapTimeSeconds() float64 {
	if c.MinLapTimeSeconds == nil {
		return 10.0
	}
	return *c.MinLapTimeSeconds
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *TuningConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 100 * time.Millisecond // 10 Hz default
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil {
		return 100 * time.Millisecond // default on parse error
	}
	return d
}

// GetSectorCount returns the sector_count value or the default.
func (c *TuningConfig) GetSectorCount() int {
	if c.SectorCount == nil {
		return 3
	}
	return *c.SectorCount
}

// GetAutoDetectRadius returns the auto_detect_radius_meters value or the default.
func (c *TuningConfig) GetAutoDetectRadius() float64 {
	if c.AutoDetectRadius == nil {
		return 5000.0
	}
	return *c.AutoDetectRadius
}

// GetLookaheadSegments returns the lookahead_segments value or the default.
func (c *TuningConfig) GetLookaheadSegments() int {
	if c.LookaheadSegments == nil {
		return 2
	}
	return *c.LookaheadSegments
}

// GetDetectorStrategy returns the detector_strategy value or the default.
func (c *TuningConfig) GetDetectorStrategy() string {
	if c.DetectorStrategy == nil {
		return "hybrid"
	}
	return *c.DetectorStrategy
}

// GetMinCornerRadius returns the min_corner_radius value or the default.
func (c *TuningConfig) GetMinCornerRadius() float64 {
	if c.MinCornerRadius == nil {
		return 100.0
	}
	return *c.MinCornerRadius
}

// GetMinCornerAngle returns the min_corner_angle value or the default.
func (c *TuningConfig) GetMinCornerAngle() float64 {
	if c.MinCornerAngle == nil {
		return 15.0
	}
	return *c.MinCornerAngle
}

// GetMergeCorners returns the merge_corners value or the default.
func (c *TuningConfig) GetMergeCorners() bool {
	if c.MergeCorners == nil {
		return true
	}
	return *c.MergeCorners
}

// GetCurvaturePeakThreshold returns the curvature_peak_threshold value or the default.
func (c *TuningConfig) GetCurvaturePeakThreshold() float64 {
	if c.CurvaturePeakThreshold == nil {
		return 0.01 // 1/100m
	}
	return *c.CurvaturePeakThreshold
}

// GetMinCutDistance returns the min_cut_distance value or the default.
func (c *TuningConfig) GetMinCutDistance() float64 {
	if c.MinCutDistance == nil {
		return 15.0
	}
	return *c.MinCutDistance
}

// GetStraightFillDistance returns the straight_fill_distance value or the default.
func (c *TuningConfig) GetStraightFillDistance() float64 {
	if c.StraightFillDistance == nil {
		return 100.0
	}
	return *c.StraightFillDistance
}

// GetMaxStraightGap returns the max_straight_gap value or the default.
func (c *TuningConfig) GetMaxStraightGap() float64 {
	if c.MaxStraightGap == nil {
		return 30.0
	}
	return *c.MaxStraightGap
}

// GetFitMinPoints returns the fit_min_points value or the default.
func (c *TuningConfig) GetFitMinPoints() int {
	if c.FitMinPoints == nil {
		return 5
	}
	return *c.FitMinPoints
}

// GetFitMaxPoints returns the fit_max_points value or the default.
func (c *TuningConfig) GetFitMaxPoints() int {
	if c.FitMaxPoints == nil {
		return 20
	}
	return *c.FitMaxPoints
}

// GetFitErrorThreshold returns the fit_error_threshold value or the default.
func (c *TuningConfig) GetFitErrorThreshold() float64 {
	if c.FitErrorThreshold == nil {
		return 0.5
	}
	return *c.FitErrorThreshold
}

// GetFitErrorIncreaseRatio returns the fit_error_increase_ratio value or the default.
func (c *TuningConfig) GetFitErrorIncreaseRatio() float64 {
	if c.FitErrorIncreaseRatio == nil {
		return 1.5
	}
	return *c.FitErrorIncreaseRatio
}

// GetMaxCornerSpan returns the max_corner_span value or the default.
func (c *TuningConfig) GetMaxCornerSpan() float64 {
	if c.MaxCornerSpan == nil {
		return 150.0
	}
	return *c.MaxCornerSpan
}

// GetMaxChicaneGap returns the max_chicane_gap value or the default.
func (c *TuningConfig) GetMaxChicaneGap() float64 {
	if c.MaxChicaneGap == nil {
		return 30.0
	}
	return *c.MaxChicaneGap
}

// GetMaxChicaneLength returns the max_chicane_length value or the default.
func (c *TuningConfig) GetMaxChicaneLength() float64 {
	if c.MaxChicaneLength == nil {
		return 200.0
	}
	return *c.MaxChicaneLength
}
