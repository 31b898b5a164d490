package analysis

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	path        TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	version     INTEGER NOT NULL,
	analyzed_at INTEGER NOT NULL,
	file_hash   TEXT NOT NULL,
	result      TEXT
)`

// SQLiteStore persists records in a SQLite database. Each Put is written
// immediately, so Save is a no-op.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) resonance_analysis.db in dataDir.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "resonance_analysis.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// go-sqlite3 connections do not share in-flight writes well.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(path string, rec *Record) error {
	if rec == nil {
		return errors.New("nil record")
	}

	var result []byte
	if rec.Result != nil {
		var err error
		if result, err = json.Marshal(rec.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	analyzedAt := rec.AnalyzedAt
	if analyzedAt == 0 {
		analyzedAt = unixNow()
	}

	_, err := s.db.Exec(`
		INSERT INTO records (path, status, error, version, analyzed_at, file_hash, result)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			version = excluded.version,
			analyzed_at = excluded.analyzed_at,
			file_hash = excluded.file_hash,
			result = excluded.result`,
		path, string(rec.Status), rec.Error, rec.Version, analyzedAt, rec.FileHash, nullableString(result))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) Get(path string) (*Record, error) {
	row := s.db.QueryRow(`
		SELECT status, error, version, analyzed_at, file_hash, result
		FROM records WHERE path = ?`, path)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return rec, err
}

func (s *SQLiteStore) IsCurrent(path, fileHash string, minVersion int) bool {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM records
		WHERE path = ? AND status = ? AND version >= ? AND file_hash = ?`,
		path, string(StatusAnalyzed), minVersion, fileHash).Scan(&n)
	return err == nil && n > 0
}

func (s *SQLiteStore) All() (map[string]*Record, error) {
	rows, err := s.db.Query(`
		SELECT path, status, error, version, analyzed_at, file_hash, result
		FROM records`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*Record)
	for rows.Next() {
		var path string
		rec, err := scanRecord(rows, &path)
		if err != nil {
			return nil, err
		}
		out[path] = rec
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Save() error {
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row. When lead is given, those columns come first.
func scanRecord(row rowScanner, lead ...any) (*Record, error) {
	var (
		rec    Record
		status string
		result sql.NullString
	)
	dest := append(lead, &status, &rec.Error, &rec.Version, &rec.AnalyzedAt, &rec.FileHash, &result)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rec.Status = Status(status)

	if result.Valid && result.String != "" {
		rec.Result = &Result{}
		if err := json.Unmarshal([]byte(result.String), rec.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &rec, nil
}

func nullableString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
