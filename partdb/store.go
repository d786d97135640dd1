package partdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heavyparts/parts_site_builder/partcatalog"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown part number
var ErrNotFound = errors.New("part not found")

const schema = `
CREATE TABLE IF NOT EXISTS parts (
	part_key    TEXT PRIMARY KEY,
	part_number TEXT NOT NULL,
	brand       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL DEFAULT '',
	record      TEXT NOT NULL,
	import_id   TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS parts_brand_category ON parts (brand, category);
CREATE TABLE IF NOT EXISTS imports (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	records    INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store keeps the parts database in SQLite with upsert-by-part-number
type Store struct {
	db *sql.DB
}

// OpenStore opens (and creates when needed) the SQLite database at path
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertResult describes one import batch
type UpsertResult struct {
	ImportID string
	Written  int
	Skipped  int
}

// Upsert writes the parts in one transaction, replacing rows with the same normalized part number.
// Parts without a part number are skipped.
func (s *Store) Upsert(ctx context.Context, source string, parts ...partcatalog.Part) (UpsertResult, error) {
	result := UpsertResult{ImportID: uuid.NewString()}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parts (part_key, part_number, brand, category, origin, record, import_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (part_key) DO UPDATE SET
			part_number = excluded.part_number,
			brand       = excluded.brand,
			category    = excluded.category,
			origin      = excluded.origin,
			record      = excluded.record,
			import_id   = excluded.import_id,
			updated_at  = excluded.updated_at`)
	if err != nil {
		return result, err
	}
	defer stmt.Close()

	for i := range parts {
		part := &parts[i]
		key := part.Key()
		if key == "" {
			result.Skipped++
			continue
		}
		record, err := json.Marshal(part)
		if err != nil {
			return result, fmt.Errorf("encode %s: %w", part.PartNumber, err)
		}
		if _, err := stmt.ExecContext(ctx, key, part.PartNumber, part.Brand, part.Category, part.Origin, string(record), result.ImportID, now); err != nil {
			return result, fmt.Errorf("upsert %s: %w", part.PartNumber, err)
		}
		result.Written++
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO imports (id, source, records, created_at) VALUES (?, ?, ?, ?)`,
		result.ImportID, source, result.Written, now); err != nil {
		return result, err
	}
	return result, tx.Commit()
}

// Get returns the part stored under any spelling of the part number
func (s *Store) Get(ctx context.Context, pn string) (partcatalog.Part, error) {
	var part partcatalog.Part
	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM parts WHERE part_key = ?`, partcatalog.NormalizePartNumber(pn)).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return part, fmt.Errorf("%s: %w", pn, ErrNotFound)
	}
	if err != nil {
		return part, err
	}
	err = json.Unmarshal([]byte(record), &part)
	return part, err
}

// All returns every part ordered by key
func (s *Store) All(ctx context.Context) ([]partcatalog.Part, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM parts ORDER BY part_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []partcatalog.Part
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var part partcatalog.Part
		if err := json.Unmarshal([]byte(record), &part); err != nil {
			return nil, fmt.Errorf("decode stored record: %w", err)
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

// Count returns the number of stored parts
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parts`).Scan(&n)
	return n, err
}
