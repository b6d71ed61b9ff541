// Package db stores raw telemetry rows in SQLite. Each row is the device's
// JSON document kept verbatim in a payload column; key naming inside the
// document is not guaranteed and is absorbed downstream by the normalizer.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"siramify-telemetry/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the SQLite connection.
type Database struct {
	conn  *sql.DB
	owner string
}

// StoredRow pairs a storage id with the decoded raw document.
type StoredRow struct {
	ID  int64
	Raw models.RawRow
}

// New opens the database and ensures the schema exists.
func New(dbPath string) (*Database, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000", dbPath)

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	db := &Database{conn: conn}
	if err := db.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return db, nil
}

func (db *Database) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS telemetry (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		payload TEXT NOT NULL
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *Database) Close() error {
	return db.conn.Close()
}

// SetOwnerFilter scopes reads to rows whose payload carries the given owner.
// An empty owner leaves reads unscoped: every caller sees every record.
func (db *Database) SetOwnerFilter(owner string) {
	db.owner = owner
}

// OwnerScoped reports whether reads are filtered by owner.
func (db *Database) OwnerScoped() bool {
	return db.owner != ""
}

func (db *Database) whereClause() (string, []interface{}) {
	if db.owner == "" {
		return "", nil
	}
	return " WHERE json_extract(payload, '$.owner') = ?", []interface{}{db.owner}
}

// Insert stores one raw row and returns its assigned id.
func (db *Database) Insert(ctx context.Context, raw models.RawRow) (int64, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}
	result, err := db.conn.ExecContext(ctx, `INSERT INTO telemetry (payload) VALUES (?)`, string(payload))
	if err != nil {
		return 0, fmt.Errorf("insert telemetry: %w", err)
	}
	return result.LastInsertId()
}

// InsertBatch stores multiple raw rows in one transaction.
func (db *Database) InsertBatch(ctx context.Context, rows []models.RawRow) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO telemetry (payload) VALUES (?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	for _, raw := range rows {
		payload, err := json.Marshal(raw)
		if err != nil {
			return count, fmt.Errorf("encode payload: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, string(payload)); err != nil {
			return count, err
		}
		count++
	}
	return count, tx.Commit()
}

// Count returns the number of stored rows.
func (db *Database) Count(ctx context.Context) (int64, error) {
	where, args := db.whereClause()
	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry`+where, args...).Scan(&count)
	return count, err
}

// ListPage returns one page of rows ordered newest first, plus the total row
// count. Pages are 1-indexed; a page outside [1, ceil(total/pageSize)] is
// rejected with *models.InvalidPageError before any row query runs.
func (db *Database) ListPage(ctx context.Context, page, pageSize int) ([]StoredRow, int, error) {
	if pageSize <= 0 {
		return nil, 0, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	total, err := db.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("count telemetry: %w", err)
	}

	maxPage := int((total + int64(pageSize) - 1) / int64(pageSize))
	if maxPage < 1 {
		maxPage = 1
	}
	if page < 1 || page > maxPage {
		return nil, int(total), &models.InvalidPageError{Page: page, MaxPage: maxPage}
	}

	where, args := db.whereClause()
	query := `SELECT id, payload FROM telemetry` + where + ` ORDER BY id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query telemetry page: %w", err)
	}
	defer rows.Close()

	stored, err := scanRows(rows)
	return stored, int(total), err
}

// Delete removes one row by id. Returns models.ErrNotFound when no row
// matches, distinct from transient storage failure.
func (db *Database) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM telemetry WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete telemetry %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("telemetry %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// ExportAll returns every row, newest first. Only the CSV export path may use
// this; cost scales with the full table.
func (db *Database) ExportAll(ctx context.Context) ([]StoredRow, error) {
	where, args := db.whereClause()
	rows, err := db.conn.QueryContext(ctx, `SELECT id, payload FROM telemetry`+where+` ORDER BY id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query telemetry export: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// RecentRows returns up to limit rows, newest first.
func (db *Database) RecentRows(ctx context.Context, limit int) ([]StoredRow, error) {
	if limit <= 0 {
		limit = 25
	}
	where, args := db.whereClause()
	query := `SELECT id, payload FROM telemetry` + where + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent telemetry: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// scanRows decodes payloads fail-open: an undecodable document becomes an
// empty raw row so the normalizer can still synthesize a displayable record.
func scanRows(rows *sql.Rows) ([]StoredRow, error) {
	var stored []StoredRow
	for rows.Next() {
		var (
			id      int64
			payload string
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan telemetry row: %w", err)
		}

		raw := models.RawRow{}
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			log.Printf("Warning: row %d: undecodable payload: %v", id, err)
			raw = models.RawRow{}
		}
		stored = append(stored, StoredRow{ID: id, Raw: raw})
	}
	return stored, rows.Err()
}
