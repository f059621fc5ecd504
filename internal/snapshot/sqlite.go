package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docchat/internal/vector"
)

// SQLiteRepository stores snapshots as blobs in a single SQLite table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// NewSQLiteRepositoryFromDB wraps an already opened database whose schema exists.
func NewSQLiteRepositoryFromDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversation_indexes (
		conversation_id TEXT PRIMARY KEY,
		snapshot BLOB NOT NULL,
		chunks INTEGER NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Load returns the snapshot stored for id.
func (s *SQLiteRepository) Load(ctx context.Context, id string) (*vector.Store, bool, error) {
	if err := ValidateKey(id); err != nil {
		return nil, false, err
	}
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM conversation_indexes WHERE conversation_id = ?`, id,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return vector.NewStore(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query snapshot %s: %w", id, err)
	}
	store, err := Unmarshal(blob)
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %s: %w", id, err)
	}
	return store, true, nil
}

// Save upserts the snapshot for id in one statement.
func (s *SQLiteRepository) Save(ctx context.Context, id string, store *vector.Store) error {
	if err := ValidateKey(id); err != nil {
		return err
	}
	blob, err := Marshal(store)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_indexes (conversation_id, snapshot, chunks, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id) DO UPDATE SET
		   snapshot = excluded.snapshot, chunks = excluded.chunks, updated_at = excluded.updated_at`,
		id, blob, store.Len(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", id, err)
	}
	return nil
}

// Delete removes the row for id.
func (s *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if err := ValidateKey(id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_indexes WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

// List returns stored conversation ids in ascending order.
func (s *SQLiteRepository) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT conversation_id FROM conversation_indexes ORDER BY conversation_id`)
	if err != nil {
		return nil, err
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

// Close closes the database.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}
