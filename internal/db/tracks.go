package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/apex.report/internal/geo"
	"github.com/banshee-data/apex.report/internal/track"
)

// UpsertTrack registers a track in the database, replacing any previous
// definition with the same name. The start/finish centre is stored
// denormalized so NearestTrack can scan without decoding geometry.
func (db *DB) UpsertTrack(ctx context.Context, t *track.Track) error {
	if t == nil {
		return fmt.Errorf("nil track")
	}
	if err := t.Validate(); err != nil {
		return err
	}
	blob, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding track %q: %w", t.Name, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO tracks (track_name, start_lat, start_lon, length_m, track_json)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (track_name) DO UPDATE SET
			start_lat = excluded.start_lat,
			start_lon = excluded.start_lon,
			length_m = excluded.length_m,
			track_json = excluded.track_json,
			updated_at = CURRENT_TIMESTAMP`,
		t.Name, t.StartFinish.CenterLat, t.StartFinish.CenterLon, t.Length, string(blob),
	)
	return err
}

// TrackByName loads one registered track, or nil when unknown.
func (db *DB) TrackByName(ctx context.Context, name string) (*track.Track, error) {
	var blob string
	err := db.QueryRowContext(ctx,
		`SELECT track_json FROM tracks WHERE track_name = ?`, name,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeTrack(name, blob)
}

// TrackNames lists the registered tracks alphabetically.
func (db *DB) TrackNames(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT track_name FROM tracks ORDER BY track_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// NearestTrack returns the registered track whose start/finish line is
// closest to the given position, or nil when none is within
// radiusMeters.
func (db *DB) NearestTrack(ctx context.Context, lat, lon, radiusMeters float64) (*track.Track, error) {
	rows, err := db.QueryContext(ctx, `SELECT track_name, start_lat, start_lon FROM tracks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bestName := ""
	bestDist := radiusMeters
	for rows.Next() {
		var (
			name     string
			tLat     float64
			tLon     float64
		)
		if err := rows.Scan(&name, &tLat, &tLon); err != nil {
			return nil, err
		}
		if d := geo.Haversine(lat, lon, tLat, tLon); d <= bestDist {
			bestName, bestDist = name, d
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if bestName == "" {
		return nil, nil
	}
	return db.TrackByName(ctx, bestName)
}

func decodeTrack(name, blob string) (*track.Track, error) {
	var t track.Track
	if err := json.Unmarshal([]byte(blob), &t); err != nil {
		return nil, fmt.Errorf("decoding track %q: %w", name, err)
	}
	return &t, nil
}
