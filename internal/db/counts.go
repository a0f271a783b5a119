package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/headcount/internal/tracking"
)

// CountStore persists counter state so a restarted counter resumes from the
// last totals it reported.
type CountStore interface {
	RecordCount(ctx context.Context, id uuid.UUID, at time.Time, ev tracking.CountEvent) error
	SaveSnapshot(ctx context.Context, at time.Time, in, out int) error
	LatestCounters(ctx context.Context) (in, out int, ok bool, err error)
}

var _ CountStore = (*DB)(nil)

// CountRecord is one stored count event.
type CountRecord struct {
	EventID     uuid.UUID `json:"event_id"`
	ObjectID    uint64    `json:"object_id"`
	Entered     bool      `json:"entered"`
	Origin      string    `json:"origin"`
	OnDoorClose bool      `json:"on_door_close"`
	In          int       `json:"in"`
	Out         int       `json:"out"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// HourlyTotal aggregates the count events of one UTC hour.
type HourlyTotal struct {
	Start   time.Time `json:"start"`
	Entered int       `json:"entered"`
	Exited  int       `json:"exited"`
}

func countedAs(entered bool) string {
	if entered {
		return "entered"
	}
	return "exited"
}

// RecordCount stores a single count event together with the counters it
// produced.
func (db *DB) RecordCount(ctx context.Context, id uuid.UUID, at time.Time, ev tracking.CountEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO count_events
			(event_id, object_id, counted_as, origin, on_door_close, entered, exited, recorded_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), int64(ev.ObjectID), countedAs(ev.Entered), ev.From.String(),
		ev.OnDoorClose, ev.In, ev.Out, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert count event: %w", err)
	}
	return nil
}

// SaveSnapshot stores the current counter totals.
func (db *DB) SaveSnapshot(ctx context.Context, at time.Time, in, out int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO counter_snapshots (entered, exited, recorded_unix_nanos) VALUES (?, ?, ?)`,
		in, out, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert counter snapshot: %w", err)
	}
	return nil
}

// LatestCounters returns the most recent totals known to the store, taking
// whichever of the last snapshot and the last count event is newer. ok is
// false when nothing has been stored yet.
func (db *DB) LatestCounters(ctx context.Context) (in, out int, ok bool, err error) {
	row := db.QueryRowContext(ctx, `
		SELECT entered, exited FROM (
			SELECT entered, exited, recorded_unix_nanos FROM counter_snapshots
			UNION ALL
			SELECT entered, exited, recorded_unix_nanos FROM count_events
		)
		ORDER BY recorded_unix_nanos DESC
		LIMIT 1`)
	if err := row.Scan(&in, &out); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("query latest counters: %w", err)
	}
	return in, out, true, nil
}

// RecentEvents returns up to limit count events, newest first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]CountRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT event_id, object_id, counted_as, origin, on_door_close, entered, exited, recorded_unix_nanos
		FROM count_events
		ORDER BY recorded_unix_nanos DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []CountRecord
	for rows.Next() {
		var (
			rec       CountRecord
			eventID   string
			objectID  int64
			counted   string
			unixNanos int64
		)
		if err := rows.Scan(&eventID, &objectID, &counted, &rec.Origin, &rec.OnDoorClose,
			&rec.In, &rec.Out, &unixNanos); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		if rec.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", eventID, err)
		}
		rec.ObjectID = uint64(objectID)
		rec.Entered = counted == "entered"
		rec.RecordedAt = time.Unix(0, unixNanos).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return records, nil
}

// HourlyTotals buckets the count events recorded in [start, end) by UTC hour.
// Hours without events are omitted.
func (db *DB) HourlyTotals(ctx context.Context, start, end time.Time) ([]HourlyTotal, error) {
	const hourNanos = int64(time.Hour)
	rows, err := db.QueryContext(ctx, `
		SELECT
			(recorded_unix_nanos / ?) * ? AS hour_start,
			SUM(CASE WHEN counted_as = 'entered' THEN 1 ELSE 0 END),
			SUM(CASE WHEN counted_as = 'exited' THEN 1 ELSE 0 END)
		FROM count_events
		WHERE recorded_unix_nanos >= ? AND recorded_unix_nanos < ?
		GROUP BY hour_start
		ORDER BY hour_start`,
		hourNanos, hourNanos, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var totals []HourlyTotal
	for rows.Next() {
		var hourStart int64
		var t HourlyTotal
		if err := rows.Scan(&hourStart, &t.Entered, &t.Exited); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		t.Start = time.Unix(0, hourStart).UTC()
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return totals, nil
}
