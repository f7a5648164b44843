package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/apex.report/internal/timing"
)

// The engine persists through these interfaces; keep them satisfied.
var (
	_ timing.LapStore    = (*DB)(nil)
	_ timing.TrackFinder = (*DB)(nil)
)

// LapSummary is one stored lap without its sample trace, as returned to
// the API layer.
type LapSummary struct {
	ID          string        `json:"id"`
	TrackName   string        `json:"track_name"`
	Number      int           `json:"number"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
	Duration    time.Duration `json:"duration"`
	DurationSec float64       `json:"duration_seconds"`
	MaxSpeedMps float64       `json:"max_speed_mps"`
	AvgSpeedMps float64       `json:"avg_speed_mps"`
	SampleCount int           `json:"sample_count"`
}

// RecordLap persists a completed lap and its sector times, and reports
// whether it beat every lap previously stored for the track. The lap row
// and its sectors commit in one transaction.
func (db *DB) RecordLap(ctx context.Context, trackName string, lap *timing.Lap, sectors []time.Duration) (bool, error) {
	if lap == nil || !lap.Complete {
		return false, fmt.Errorf("lap is not complete")
	}

	prevBest, hadBest, err := db.BestLapDuration(ctx, trackName)
	if err != nil {
		return false, err
	}
	isNewBest := !hadBest || lap.Duration < prevBest

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO laps (
			lap_id, track_name, lap_number, start_time_unix_ms, end_time_unix_ms,
			duration_ms, max_speed_mps, avg_speed_mps, sample_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lap.ID, trackName, lap.Number,
		lap.StartTime.UnixMilli(), lap.EndTime.UnixMilli(),
		lap.Duration.Milliseconds(),
		lap.MaxSpeedMps, lap.AvgSpeedMps, len(lap.Samples),
	)
	if err != nil {
		return false, fmt.Errorf("inserting lap %s: %w", lap.ID, err)
	}

	for i, s := range sectors {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO lap_sectors (lap_id, sector_number, duration_ms) VALUES (?, ?, ?)`,
			lap.ID, i+1, s.Milliseconds(),
		)
		if err != nil {
			return false, fmt.Errorf("inserting sector %d of lap %s: %w", i+1, lap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return isNewBest, nil
}

// BestLapDuration returns the fastest stored lap for the track. The
// second return is false when the track has no laps yet.
func (db *DB) BestLapDuration(ctx context.Context, trackName string) (time.Duration, bool, error) {
	var ms sql.NullInt64
	err := db.QueryRowContext(ctx,
		`SELECT MIN(duration_ms) FROM laps WHERE track_name = ?`, trackName,
	).Scan(&ms)
	if err != nil {
		return 0, false, err
	}
	if !ms.Valid {
		return 0, false, nil
	}
	return time.Duration(ms.Int64) * time.Millisecond, true, nil
}

// Laps returns the most recent stored laps for the track, newest first.
func (db *DB) Laps(ctx context.Context, trackName string, limit int) ([]LapSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT lap_id, track_name, lap_number, start_time_unix_ms, end_time_unix_ms,
			duration_ms, max_speed_mps, avg_speed_mps, sample_count
		FROM laps WHERE track_name = ?
		ORDER BY start_time_unix_ms DESC LIMIT ?`,
		trackName, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var laps []LapSummary
	for rows.Next() {
		var (
			lap              LapSummary
			startMs, endMs   int64
			durMs            int64
		)
		if err := rows.Scan(
			&lap.ID, &lap.TrackName, &lap.Number, &startMs, &endMs,
			&durMs, &lap.MaxSpeedMps, &lap.AvgSpeedMps, &lap.SampleCount,
		); err != nil {
			return nil, err
		}
		lap.StartTime = time.UnixMilli(startMs).UTC()
		lap.EndTime = time.UnixMilli(endMs).UTC()
		lap.Duration = time.Duration(durMs) * time.Millisecond
		lap.DurationSec = lap.Duration.Seconds()
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}

// SectorTimes returns the stored sector durations of one lap in sector
// order.
func (db *DB) SectorTimes(ctx context.Context, lapID string) ([]time.Duration, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT duration_ms FROM lap_sectors WHERE lap_id = ? ORDER BY sector_number`,
		lapID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sectors []time.Duration
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, err
		}
		sectors = append(sectors, time.Duration(ms)*time.Millisecond)
	}
	return sectors, rows.Err()
}

// SaveReferenceLap stores the lap's full trace as the track's reference
// for delta comparison in later sessions, replacing any previous one.
func (db *DB) SaveReferenceLap(ctx context.Context, trackName string, lap *timing.Lap) error {
	if lap == nil {
		return fmt.Errorf("nil reference lap")
	}
	blob, err := json.Marshal(lap)
	if err != nil {
		return fmt.Errorf("encoding reference lap %s: %w", lap.ID, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO reference_laps (track_name, lap_id, duration_ms, lap_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (track_name) DO UPDATE SET
			lap_id = excluded.lap_id,
			duration_ms = excluded.duration_ms,
			lap_json = excluded.lap_json,
			saved_at = CURRENT_TIMESTAMP`,
		trackName, lap.ID, lap.Duration.Milliseconds(), string(blob),
	)
	return err
}

// ReferenceLap loads the stored reference lap for the track, or nil when
// none has been saved.
func (db *DB) ReferenceLap(ctx context.Context, trackName string) (*timing.Lap, error) {
	var blob string
	err := db.QueryRowContext(ctx,
		`SELECT lap_json FROM reference_laps WHERE track_name = ?`, trackName,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var lap timing.Lap
	if err := json.Unmarshal([]byte(blob), &lap); err != nil {
		return nil, fmt.Errorf("decoding reference lap for %q: %w", trackName, err)
	}
	return &lap, nil
}

// RecordCornerSpeeds persists per-corner records for one lap in a single
// transaction.
func (db *DB) RecordCornerSpeeds(ctx context.Context, trackName string, records []timing.CornerSpeedRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO corner_records (
				track_name, corner_id, lap_id, lap_number,
				min_speed_mps, min_speed_distance, entry_speed_mps, exit_speed_mps, avg_speed_mps,
				peak_lateral_g, peak_longitudinal_g, peak_yaw_rate_dps, peak_yaw_accel_dps2
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			trackName, r.CornerID, r.LapID, r.LapNumber,
			r.MinSpeedMps, r.MinSpeedDistance, r.EntrySpeedMps, r.ExitSpeedMps, r.AvgSpeedMps,
			r.PeakLateralG, r.PeakLongitudinalG, r.PeakYawRateDps, r.PeakYawAccelDps2,
		)
		if err != nil {
			return fmt.Errorf("inserting corner %d record for lap %s: %w", r.CornerID, r.LapID, err)
		}
	}
	return tx.Commit()
}

// CornerRecords returns the stored records for one corner of a track,
// fastest minimum speed first.
func (db *DB) CornerRecords(ctx context.Context, trackName string, cornerID, limit int) ([]timing.CornerSpeedRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT corner_id, lap_id, lap_number,
			min_speed_mps, min_speed_distance, entry_speed_mps, exit_speed_mps, avg_speed_mps,
			peak_lateral_g, peak_longitudinal_g, peak_yaw_rate_dps, peak_yaw_accel_dps2
		FROM corner_records WHERE track_name = ? AND corner_id = ?
		ORDER BY min_speed_mps DESC LIMIT ?`,
		trackName, cornerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCornerRecords(rows)
}

// BestCornerRecords returns, for every corner of the track, the record
// with the highest minimum speed.
func (db *DB) BestCornerRecords(ctx context.Context, trackName string) ([]timing.CornerSpeedRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT corner_id, lap_id, lap_number,
			min_speed_mps, min_speed_distance, entry_speed_mps, exit_speed_mps, avg_speed_mps,
			peak_lateral_g, peak_longitudinal_g, peak_yaw_rate_dps, peak_yaw_accel_dps2
		FROM corner_records WHERE track_name = ?
		GROUP BY corner_id HAVING min_speed_mps = MAX(min_speed_mps)
		ORDER BY corner_id`,
		trackName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCornerRecords(rows)
}

func scanCornerRecords(rows *sql.Rows) ([]timing.CornerSpeedRecord, error) {
	var records []timing.CornerSpeedRecord
	for rows.Next() {
		var r timing.CornerSpeedRecord
		if err := rows.Scan(
			&r.CornerID, &r.LapID, &r.LapNumber,
			&r.MinSpeedMps, &r.MinSpeedDistance, &r.EntrySpeedMps, &r.ExitSpeedMps, &r.AvgSpeedMps,
			&r.PeakLateralG, &r.PeakLongitudinalG, &r.PeakYawRateDps, &r.PeakYawAccelDps2,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
