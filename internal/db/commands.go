package db

import (
	"context"
	"fmt"
	"time"
)

// CommandEntry is one operator command from the audit log.
type CommandEntry struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	Command    string    `json:"command"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LogCommand appends a counter command (GET, RESET, SET ...) to the audit
// log. source identifies the interface it arrived on, e.g. "serial".
func (db *DB) LogCommand(ctx context.Context, at time.Time, source, command string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO command_log (source, command, recorded_unix_nanos) VALUES (?, ?, ?)`,
		source, command, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert command log: %w", err)
	}
	return nil
}

// RecentCommands returns up to limit logged commands, newest first.
func (db *DB) RecentCommands(ctx context.Context, limit int) ([]CommandEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT command_id, source, command, recorded_unix_nanos
		FROM command_log
		ORDER BY command_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var entries []CommandEntry
	for rows.Next() {
		var e CommandEntry
		var unixNanos int64
		if err := rows.Scan(&e.ID, &e.Source, &e.Command, &unixNanos); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		e.RecordedAt = time.Unix(0, unixNanos).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return entries, nil
}
