package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mjscore/internal/ports"
)

const timeFormat = time.RFC3339Nano

const schema = `CREATE TABLE IF NOT EXISTS blobs (
	table_id   TEXT NOT NULL,
	blob_key   TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (table_id, blob_key)
)`

const upsert = `INSERT INTO blobs (table_id, blob_key, value, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT (table_id, blob_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

// Store is a SQLite-backed blob store. One database can hold many tables; Table scopes it to one.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a second connection to :memory: would see an empty database
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Table returns the blob store of one score table.
func (s *Store) Table(tableID string) *TableStore {
	return &TableStore{store: s, tableID: tableID}
}

// Tables lists the ids of every table with saved data.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT DISTINCT table_id FROM blobs ORDER BY table_id`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TableStore is the blob store of a single table.
type TableStore struct {
	store   *Store
	tableID string
}

var (
	_ ports.BlobStore   = (*TableStore)(nil)
	_ ports.BatchSetter = (*TableStore)(nil)
)

func (t *TableStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := t.store.sqlDB.QueryRowContext(ctx,
		`SELECT value FROM blobs WHERE table_id = ? AND blob_key = ?`, t.tableID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (t *TableStore) Set(ctx context.Context, key string, blob []byte) error {
	return t.SetMany(ctx, map[string][]byte{key: blob})
}

// SetMany writes every blob in one transaction.
func (t *TableStore) SetMany(ctx context.Context, blobs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := t.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeFormat)
	for key, blob := range blobs {
		if _, err := tx.ExecContext(ctx, upsert, t.tableID, key, blob, now); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
