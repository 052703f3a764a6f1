// Package auditstore persists the append-only booking-outcome and
// job-transition audit trail described in spec.md §3 (BookingRecord) and
// §4.10 (job lifecycle). Unlike the credential store and jobs file —
// whose on-disk formats spec.md §6 mandates exactly — the audit log's
// format is free-form, so it is kept in a migrated SQLite database
// rather than hand-rolled JSON.
//
// Grounded on the teacher's internal/db package: pure-Go
// modernc.org/sqlite driver, pressly/goose/v3 embedded migrations
// applied on Open, and a legacy-schema bootstrap path — adapted here
// from "claude-ops session/health-check history" to
// "booking-record/job-event history", matching the table shapes
// original_source/sja_booking/database.py's DatabaseManager hand-rolled
// with raw CREATE TABLE statements (booking_records,
// auto_booking_targets, auto_booking_results).
package auditstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/courtrace/agent/internal/model"
)

// Store wraps a migrated SQLite connection recording audit history.
type Store struct {
	conn *sql.DB
}

// Open creates or opens the database at path and applies every pending
// migration.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("auditstore: open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("auditstore: ping sqlite: %w", err)
	}
	if err := bootstrapFromLegacy(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("auditstore: bootstrap legacy schema: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("auditstore: migrations sub-fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("auditstore: create migration provider: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("auditstore: apply migrations: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }

// InsertBookingRecord appends one booking outcome to the audit log.
func (s *Store) InsertBookingRecord(ctx context.Context, rec model.BookingRecord) (int64, error) {
	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO booking_records
			(order_id, preset_index, venue_name, field_type_name, date, start_time, end_time, status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(rec.OrderID), rec.PresetIndex, rec.VenueName, rec.FieldTypeName,
		rec.Date, rec.Start, rec.End, rec.Status, rec.Message, formatTime(rec.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("auditstore: insert booking record: %w", err)
	}
	return res.LastInsertId()
}

// ListBookingRecords returns the most recent booking records, newest
// first, capped at limit (0 means unlimited).
func (s *Store) ListBookingRecords(ctx context.Context, limit int) ([]model.BookingRecord, error) {
	query := `SELECT order_id, preset_index, venue_name, field_type_name, date, start_time, end_time, status, message, created_at
	          FROM booking_records ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("auditstore: list booking records: %w", err)
	}
	defer rows.Close()

	var out []model.BookingRecord
	for rows.Next() {
		var rec model.BookingRecord
		var orderID sql.NullString
		var createdAt string
		if err := rows.Scan(&orderID, &rec.PresetIndex, &rec.VenueName, &rec.FieldTypeName,
			&rec.Date, &rec.Start, &rec.End, &rec.Status, &rec.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("auditstore: scan booking record: %w", err)
		}
		rec.OrderID = orderID.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordJobTransition appends one entry to the job-lifecycle audit
// trail (Pending/Running/Stopped/Failed/Completed transitions).
func (s *Store) RecordJobTransition(ctx context.Context, jobID string, jobType model.JobType, from, to model.JobStatus, message string) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO job_events (job_id, job_type, from_status, to_status, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, string(jobType), nullableString(string(from)), string(to), message, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("auditstore: record job transition: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}
