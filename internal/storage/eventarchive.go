package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"forgeloop/pkg/models"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// ArchiveFilter specifies criteria for querying archived events. Zero
// values match everything; Limit bounds the result, newest first. A
// zero Limit means 100; a negative Limit means no bound.
type ArchiveFilter struct {
	Type      string
	ProjectID string
	Since     *time.Time
	Limit     int
}

// EventArchive is the durable record of every lifecycle event, kept in
// SQLite so history survives restarts and the bounded in-memory window.
type EventArchive interface {
	ArchiveEvent(evt models.LifecycleEvent) error
	Query(filter ArchiveFilter) ([]models.LifecycleEvent, error)
	CountByType(since *time.Time) (map[string]int, error)
	Close() error
}

type sqliteEventArchive struct {
	db *sql.DB
}

// NewEventArchive opens (creating if needed) the event archive database
// under events/ in the given base directory and applies pending
// migrations.
func NewEventArchive(basePath string) (EventArchive, error) {
	dir := filepath.Join(basePath, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("opening event archive: creating directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", filepath.Join(dir, "archive.db"))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening event archive: %w", err)
	}
	if err := migrateArchive(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating event archive: %w", err)
	}
	return &sqliteEventArchive{db: db}, nil
}

type archiveMigration struct {
	version int
	name    string
	upSQL   string
}

func loadArchiveMigrations() ([]archiveMigration, error) {
	files, err := fs.ReadDir(migrationsFS, "sql")
	if err != nil {
		return nil, err
	}
	var migrations []archiveMigration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := migrationsFS.ReadFile("sql/" + f.Name())
		if err != nil {
			return nil, err
		}
		var v int
		if _, err := fmt.Sscanf(f.Name(), "%d_", &v); err != nil {
			return nil, fmt.Errorf("invalid migration filename %s: %w", f.Name(), err)
		}
		migrations = append(migrations, archiveMigration{version: v, name: f.Name(), upSQL: string(data)})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

// migrateArchive applies embedded migrations in order, tracking the
// current version in a schema_version table.
func migrateArchive(db *sql.DB) error {
	migrations, err := loadArchiveMigrations()
	if err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var currentVersion int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&currentVersion)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema_version: %w", err)
		}
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.upSQL); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, m.version); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
		currentVersion = m.version
	}
	return tx.Commit()
}

// ArchiveEvent inserts one event. The project ID is lifted out of the
// payload when present so queries can filter without JSON parsing.
func (a *sqliteEventArchive) ArchiveEvent(evt models.LifecycleEvent) error {
	var payload any
	if evt.Payload != nil {
		data, err := json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("archiving event %s: marshaling payload: %w", evt.ID, err)
		}
		payload = string(data)
	}

	projectID := ""
	if pid, ok := evt.Payload["project_id"].(string); ok {
		projectID = pid
	}

	_, err := a.db.Exec(
		`INSERT INTO events(event_id, type, ts, source, project_id, payload_json) VALUES (?,?,?,?,?,?)`,
		evt.ID, string(evt.Type), evt.Timestamp.UTC().Format(time.RFC3339Nano), evt.Source, projectID, payload,
	)
	if err != nil {
		return fmt.Errorf("archiving event %s: %w", evt.ID, err)
	}
	return nil
}

// Query returns archived events matching the filter, newest first.
func (a *sqliteEventArchive) Query(filter ArchiveFilter) ([]models.LifecycleEvent, error) {
	clauses := []string{"1=1"}
	var args []any
	if filter.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, filter.Type)
	}
	if filter.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, filter.ProjectID)
	}
	if filter.Since != nil {
		clauses = append(clauses, "ts>=?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	// SQLite reads a negative LIMIT as unbounded.
	limit := filter.Limit
	if limit == 0 {
		limit = 100
	}

	query := fmt.Sprintf(
		`SELECT event_id, type, ts, source, payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "),
	)
	args = append(args, limit)

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event archive: %w", err)
	}
	defer rows.Close()

	var result []models.LifecycleEvent
	for rows.Next() {
		var evt models.LifecycleEvent
		var typ, ts string
		var payload sql.NullString
		if err := rows.Scan(&evt.ID, &typ, &ts, &evt.Source, &payload); err != nil {
			return nil, fmt.Errorf("scanning archived event: %w", err)
		}
		evt.Type = models.EventType(typ)
		evt.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing archived timestamp %q: %w", ts, err)
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &evt.Payload); err != nil {
				return nil, fmt.Errorf("parsing archived payload for %s: %w", evt.ID, err)
			}
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}

// CountByType returns event totals grouped by type, optionally bounded
// to events at or after since.
func (a *sqliteEventArchive) CountByType(since *time.Time) (map[string]int, error) {
	query := `SELECT type, COUNT(*) FROM events GROUP BY type`
	var args []any
	if since != nil {
		query = `SELECT type, COUNT(*) FROM events WHERE ts>=? GROUP BY type`
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}

	rows, err := a.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting archived events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, fmt.Errorf("scanning event count: %w", err)
		}
		counts[typ] = count
	}
	return counts, rows.Err()
}

// Close closes the underlying database.
func (a *sqliteEventArchive) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("closing event archive: %w", err)
	}
	return nil
}
