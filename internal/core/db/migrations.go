package db

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stratamed/policymatch/migrations"
)

// MigrationStatus reports one embedded migration against the tracking table.
type MigrationStatus struct {
	ID          string
	Checksum    string
	Applied     bool
	AppliedAt   *time.Time
	ExecutionMs int64
}

// migrationFile is one embedded .sql file, checksummed at load time.
type migrationFile struct {
	id       string
	checksum string
	sql      string
}

// MigrateUp applies every pending migration in filename order. Each file
// runs and is recorded inside one transaction, so a half-applied migration
// never shows as done. Applied files are checksummed against the embedded
// copies first; an edited migration fails loudly, and schema changes must
// arrive as new files.
func MigrateUp(db *sqlx.DB) error {
	files, tracked, err := loadState(db)
	if err != nil {
		return err
	}

	for _, f := range files {
		if _, done := tracked[f.id]; done {
			continue
		}
		if err := applyOne(db, f); err != nil {
			return err
		}
	}
	return nil
}

// MigrateStatus lists every embedded migration with its applied state.
func MigrateStatus(db *sqlx.DB) ([]MigrationStatus, error) {
	files, _, err := loadState(db)
	if err != nil {
		return nil, err
	}

	rows, err := db.Queryx("SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus, len(files))
	for rows.Next() {
		var (
			st  MigrationStatus
			raw any
		)
		if err := rows.Scan(&st.ID, &st.Checksum, &raw, &st.ExecutionMs); err != nil {
			return nil, err
		}
		at, err := decodeAppliedAt(raw)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", st.ID, err)
		}
		st.Applied = true
		st.AppliedAt = &at
		applied[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(files))
	for _, f := range files {
		if st, ok := applied[f.id]; ok {
			statuses = append(statuses, st)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: f.id, Checksum: f.checksum})
	}
	return statuses, nil
}

// loadState reads the embedded migration set for the connection's driver,
// ensures the tracking table exists, and reconciles the table against the
// embedded files. The returned map is migration id to recorded checksum.
func loadState(db *sqlx.DB) ([]migrationFile, map[string]string, error) {
	fsys, err := migrationSet(db.DriverName())
	if err != nil {
		return nil, nil, err
	}
	files, err := loadMigrations(fsys)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := ensureTrackingTable(db); err != nil {
		return nil, nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	tracked, err := trackedChecksums(db)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	byID := make(map[string]string, len(files))
	for _, f := range files {
		byID[f.id] = f.checksum
	}
	for id, recorded := range tracked {
		embeddedSum, ok := byID[id]
		if !ok {
			return nil, nil, fmt.Errorf("migration %s recorded in database but missing from the binary", id)
		}
		if recorded != embeddedSum {
			return nil, nil, fmt.Errorf("checksum mismatch for migration %s: embedded %s, database %s", id, embeddedSum, recorded)
		}
	}
	return files, tracked, nil
}

// migrationSet selects the embedded migration directory for a driver.
func migrationSet(driver string) (fs.FS, error) {
	switch driver {
	case "sqlite3":
		return fs.Sub(migrations.SqliteMigrations, "sqlite")
	case "postgres":
		return fs.Sub(migrations.PostgresMigrations, "postgres")
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func loadMigrations(fsys fs.FS) ([]migrationFile, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}
	// Filename order is application order: 001_, 002_, ...
	sort.Strings(names)

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files = append(files, migrationFile{
			id:       name,
			checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			sql:      string(content),
		})
	}
	return files, nil
}

// ensureTrackingTable creates the migrations table when absent. The DDL
// must stay identical to the migrations table in 001_initial_schema.sql;
// a tracking-schema change updates both places.
func ensureTrackingTable(db *sqlx.DB) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
			execution_ms INTEGER NOT NULL
		)`
	if db.DriverName() == "sqlite3" {
		ddl = `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			execution_ms INTEGER NOT NULL,
			CHECK (applied_at LIKE '____-__-__T__:__:__Z')
		)`
	}
	_, err := db.Exec(ddl)
	return err
}

func trackedChecksums(db *sqlx.DB) (map[string]string, error) {
	var rows []struct {
		ID       string `db:"migration_id"`
		Checksum string `db:"checksum"`
	}
	if err := db.Select(&rows, "SELECT migration_id, checksum FROM migrations"); err != nil {
		return nil, err
	}
	tracked := make(map[string]string, len(rows))
	for _, r := range rows {
		tracked[r.ID] = r.Checksum
	}
	return tracked, nil
}

func applyOne(db *sqlx.DB, f migrationFile) error {
	start := time.Now()
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", f.id, err)
	}
	defer tx.Rollback()

	// lib/pq refuses multiple statements per Exec, so files split on
	// semicolons. Statements never carry semicolons in literals, and
	// comments live inside statements.
	for _, stmt := range strings.Split(f.sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", f.id, err)
		}
	}

	if err := recordApplied(tx, f, time.Since(start)); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", f.id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", f.id, err)
	}
	return nil
}

// recordApplied stamps the tracking row. sqlite stores applied_at as the
// RFC3339 text its CHECK constraint expects; postgres takes the time value.
func recordApplied(tx *sqlx.Tx, f migrationFile, took time.Duration) error {
	var appliedAt any = time.Now().UTC()
	if tx.DriverName() == "sqlite3" {
		appliedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := tx.Exec(
		tx.Rebind("INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		f.id, f.checksum, appliedAt, took.Milliseconds(),
	)
	return err
}

// decodeAppliedAt accepts both drivers' encodings: postgres hands back
// time.Time, sqlite the RFC3339 text it was given.
func decodeAppliedAt(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return time.Parse(time.RFC3339, t)
	case []byte:
		return time.Parse(time.RFC3339, string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected applied_at type %T", v)
	}
}
