package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const sqliteDriver = "sqlite"

// sqliteBatch keeps IN lists well under SQLite's bound-parameter limit.
const sqliteBatch = 500

// SQLiteStore keeps job documents as JSON rows in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite opens (and creates if needed) a SQLite-backed store.
//
// Local file paths get their parent directory created. WAL and busy_timeout
// are applied to file databases for predictable CLI behaviour.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig, logger *zap.Logger) (*SQLiteStore, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn, err := sqliteDSN(cfg.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	// One connection: ":memory:" databases are per-connection and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if dsn != ":memory:" {
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA busy_timeout=5000;",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("configure job store: %w", err)
			}
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func sqliteDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig)
	case path == ":memory:":
		return path, nil
	case strings.HasPrefix(path, "file:"):
		return path, nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create job store dir: %w", err)
		}
	}
	return "file:" + filepath.Clean(path), nil
}

// Migrate creates the schema in place.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS jobstate (
		ujs_job_id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("migrate job store: %w", err)
	}
	return nil
}

// Put inserts or replaces a document. The document must carry ujs_job_id.
func (s *SQLiteStore) Put(ctx context.Context, doc Document) error {
	id, err := requireID(doc.ID())
	if err != nil {
		return err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal job document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO jobstate (ujs_job_id, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ujs_job_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		id, string(b), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put job %s: %w", id, err)
	}
	return nil
}

// GetJobs implements Store.
func (s *SQLiteStore) GetJobs(ctx context.Context, ids []string, projection []string) (map[string]Document, error) {
	ids = NormalizeIDs(ids)
	out := make(map[string]Document, len(ids))

	for start := 0; start < len(ids); start += sqliteBatch {
		end := min(start+sqliteBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := "SELECT ujs_job_id, doc FROM jobstate WHERE ujs_job_id IN (?" +
			strings.Repeat(",?", len(batch)-1) + ")"

		if err := s.collect(ctx, out, projection, query, args...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) collect(ctx context.Context, out map[string]Document, projection []string, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return fmt.Errorf("scan job row: %w", err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return fmt.Errorf("job %s: %w", id, err)
		}
		out[id] = doc.Project(projection)
	}
	return rows.Err()
}

// GetJob implements Store.
func (s *SQLiteStore) GetJob(ctx context.Context, id string, projection []string) (Document, error) {
	id, err := requireID(id)
	if err != nil {
		return nil, err
	}

	var raw string
	err = s.db.QueryRowContext(ctx, "SELECT doc FROM jobstate WHERE ujs_job_id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return doc.Project(projection), nil
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close(_ context.Context) error {
	return s.db.Close()
}

func decodeDocument(raw string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode job document: %w", err)
	}
	return doc, nil
}

var _ Store = (*SQLiteStore)(nil)
