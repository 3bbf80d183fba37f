package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/foliocms/folio/internal/resource"
)

const (
	// timeFormat is the ISO 8601 format used for all timestamps in SQLite.
	// Millisecond precision keeps the lexicographic order equal to the
	// chronological order, which the listing ORDER BY relies on.
	timeFormat = "2006-01-02T15:04:05.000Z"
)

// SQLiteStore implements the Store interface using SQLite as the backing
// database. It provides durable, ACID-compliant record storage suitable for
// single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore with the given DSN and initializes
// the database schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the required tables and indexes.
// This is safe to call multiple times (idempotent via IF NOT EXISTS).
func (s *SQLiteStore) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			fields     TEXT NOT NULL DEFAULT '{}',
			media_ref  TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,

			PRIMARY KEY (collection, id)
		);

		CREATE INDEX IF NOT EXISTS idx_records_listing
			ON records(collection, created_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Insert persists a new record and returns it.
func (s *SQLiteStore) Insert(ctx context.Context, def *resource.Definition, fields map[string]string, mediaRef string) (*resource.Record, error) {
	rec := &resource.Record{
		ID:        resource.NewID(),
		Fields:    copyFields(fields),
		MediaRef:  mediaRef,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, fields, media_ref, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		def.Name,
		rec.ID,
		string(fieldsJSON),
		rec.MediaRef,
		rec.CreatedAt.Format(timeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting record into %q: %w", def.Name, err)
	}
	return rec, nil
}

// FindByID returns the record with the given ID, or ErrNotFound.
func (s *SQLiteStore) FindByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fields, media_ref, created_at
		 FROM records WHERE collection = ? AND id = ?`,
		def.Name, id,
	)
	return scanRecord(row)
}

// Update merges the supplied fields into the existing record inside a
// transaction so a concurrent update cannot interleave with the
// read-modify-write.
func (s *SQLiteStore) Update(ctx context.Context, def *resource.Definition, id string, fields map[string]string, mediaRef *string) (*resource.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, fields, media_ref, created_at
		 FROM records WHERE collection = ? AND id = ?`,
		def.Name, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	merged, err := mergeFields(def, rec.Fields, fields)
	if err != nil {
		return nil, err
	}
	rec.Fields = merged
	if mediaRef != nil {
		rec.MediaRef = *mediaRef
	}

	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling fields: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE records SET fields = ?, media_ref = ?
		 WHERE collection = ? AND id = ?`,
		string(fieldsJSON), rec.MediaRef, def.Name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating record %q/%q: %w", def.Name, id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}
	return rec, nil
}

// DeleteByID removes the record and returns it so the caller can read its
// MediaRef before it is gone.
func (s *SQLiteStore) DeleteByID(ctx context.Context, def *resource.Definition, id string) (*resource.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, fields, media_ref, created_at
		 FROM records WHERE collection = ? AND id = ?`,
		def.Name, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`,
		def.Name, id,
	)
	if err != nil {
		return nil, fmt.Errorf("deleting record %q/%q: %w", def.Name, id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing delete: %w", err)
	}
	return rec, nil
}

// List returns the requested page ordered by created_at descending plus the
// full collection count. Ties on created_at fall back to rowid so insertion
// order still decides.
func (s *SQLiteStore) List(ctx context.Context, def *resource.Definition, page, limit int) ([]*resource.Record, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, def.Name,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting records in %q: %w", def.Name, err)
	}

	// A negative offset means the product overflowed; either way the page is
	// past the end of the collection, so skip the query entirely rather than
	// hand SQLite a bogus OFFSET.
	offset := (page - 1) * limit
	if offset < 0 || offset >= total {
		return nil, total, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields, media_ref, created_at
		 FROM records WHERE collection = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ? OFFSET ?`,
		def.Name, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing records in %q: %w", def.Name, err)
	}
	defer rows.Close()

	var records []*resource.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating records in %q: %w", def.Name, err)
	}
	return records, total, nil
}

// Count returns the number of records in the collection.
func (s *SQLiteStore) Count(ctx context.Context, def *resource.Definition) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE collection = ?`, def.Name,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("counting records in %q: %w", def.Name, err)
	}
	return total, nil
}

// MediaRefs returns every non-empty media reference across all collections.
func (s *SQLiteStore) MediaRefs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT media_ref FROM records WHERE media_ref != ''`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing media refs: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning media ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating media refs: %w", err)
	}
	return refs, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one record row, mapping sql.ErrNoRows to ErrNotFound.
func scanRecord(row scanner) (*resource.Record, error) {
	var (
		rec        resource.Record
		fieldsJSON string
		createdAt  string
	)
	err := row.Scan(&rec.ID, &fieldsJSON, &rec.MediaRef, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}

	if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
		return nil, fmt.Errorf("unmarshaling record fields: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]string{}
	}

	rec.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	return &rec, nil
}

func copyFields(fields map[string]string) map[string]string {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return cp
}
