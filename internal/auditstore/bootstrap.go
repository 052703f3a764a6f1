package auditstore

import (
	"database/sql"
	"fmt"
)

// bootstrapFromLegacy upgrades a database created by
// original_source/sja_booking/database.py's hand-rolled
// "CREATE TABLE IF NOT EXISTS" scheme (no migration tracking at all) so
// goose can take ownership of it without re-running migrations that
// already exist. A fresh database has no legacy tables and this is a
// no-op; a database already migrated by goose is left untouched.
func bootstrapFromLegacy(conn *sql.DB) error {
	var legacyTables int
	err := conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('booking_records', 'monitors', 'scheduled_jobs')`,
	).Scan(&legacyTables)
	if err != nil {
		return fmt.Errorf("check legacy tables: %w", err)
	}
	if legacyTables == 0 {
		return nil
	}

	var gooseTables int
	err = conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='goose_db_version'`,
	).Scan(&gooseTables)
	if err != nil {
		return fmt.Errorf("check goose table: %w", err)
	}
	if gooseTables > 0 {
		return nil
	}

	// booking_records already matches the version-1 migration's schema
	// byte-for-byte (see migrations/00001_init.sql); mark that version
	// applied instead of re-creating a table that already exists.
	_, err = conn.Exec(`CREATE TABLE goose_db_version (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL,
		is_applied INTEGER NOT NULL,
		tstamp TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create goose_db_version: %w", err)
	}
	_, err = conn.Exec(`INSERT INTO goose_db_version (version_id, is_applied, tstamp) VALUES (1, 1, datetime('now'))`)
	if err != nil {
		return fmt.Errorf("seed goose_db_version: %w", err)
	}
	return nil
}
