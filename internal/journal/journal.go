// Package journal keeps a durable SQLite log of store activity: operations
// started and completed, notifications delivered and notifications ignored.
//
// The journal is an audit trail for support and debugging. The store never
// reads it back; losing it does not affect purchasing.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on entries(operation_id, seq)
const currentSchemaVersion = 1

// Entry categories.
const (
	CategoryOperationStarted    = "operation_started"
	CategoryOperationCompleted  = "operation_completed"
	CategoryNotification        = "notification"
	CategoryNotificationIgnored = "notification_ignored"
)

// Entry is one journal row.
type Entry struct {
	Seq         int64          `json:"seq"`
	OperationID string         `json:"operation_id,omitempty"`
	Category    string         `json:"category"`
	Name        string         `json:"name"`
	ProductID   string         `json:"product_id,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// Journal is the SQLite-backed entry log.
type Journal struct {
	db    *sql.DB
	clock *Clock
}

// Open creates or opens a journal database at path. Use ":memory:" for an
// in-process journal.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// The logical clock resumes after the highest existing seq.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer; one connection also keeps ":memory:" a
	// single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	var last sql.NullInt64
	if err := db.QueryRow("SELECT MAX(seq) FROM entries").Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read last seq: %w", err)
	}

	return &Journal{db: db, clock: NewClockAt(last.Int64)}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// WriteEntry appends e, stamping it with the next seq. e.Seq is ignored.
// Returns the assigned seq.
func (j *Journal) WriteEntry(ctx context.Context, e Entry) (int64, error) {
	detail := e.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return 0, fmt.Errorf("write entry: marshal detail: %w", err)
	}

	seq := j.clock.Next()
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO entries (seq, operation_id, category, name, product_id, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		seq,
		e.OperationID,
		e.Category,
		e.Name,
		e.ProductID,
		string(detailJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("write entry: %w", err)
	}

	return seq, nil
}

// ReadEntries returns every entry in seq order.
func (j *Journal) ReadEntries(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, `
		SELECT seq, operation_id, category, name, product_id, detail
		FROM entries
		ORDER BY seq
	`)
}

// ReadOperation returns the entries of one operation in seq order.
func (j *Journal) ReadOperation(ctx context.Context, operationID string) ([]Entry, error) {
	return j.query(ctx, `
		SELECT seq, operation_id, category, name, product_id, detail
		FROM entries
		WHERE operation_id = ?
		ORDER BY seq
	`, operationID)
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			detailJSON string
		)
		if err := rows.Scan(&e.Seq, &e.OperationID, &e.Category, &e.Name, &e.ProductID, &detailJSON); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(detailJSON), &e.Detail); err != nil {
			return nil, fmt.Errorf("entry %d: unmarshal detail: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the operation index for journals created before v1.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_entries_operation
		ON entries(operation_id, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
