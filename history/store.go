// Package history keeps a log of every strategy attempt in a SQLite database, so that "why was grpc fetched from
// the network last week?" has an answer.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tablog/depresolve/resolve"
	_ "modernc.org/sqlite" // SQLite driver registration
)

// Row is one recorded attempt.
type Row struct {
	ID       int64
	Time     time.Time
	Dep      string
	Version  string
	Strategy resolve.StrategyName
	Outcome  string
	Reason   string
	Duration time.Duration
}

// Store implements resolve.Recorder.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ resolve.Recorder = (*Store)(nil)

// Open opens or creates the history database at `path`.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			ts          TEXT NOT NULL,
			dep         TEXT NOT NULL,
			version     TEXT NOT NULL,
			strategy    TEXT NOT NULL,
			outcome     TEXT NOT NULL,
			reason      TEXT NOT NULL,
			duration_ms INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_dep ON attempts(dep);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

func (s *Store) Record(a resolve.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO attempts (ts, dep, version, strategy, outcome, reason, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.Time.UTC().Format(time.RFC3339Nano), a.Dep, a.Version, string(a.Strategy), a.Outcome.String(), a.Reason,
		a.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("inserting attempt: %w", err)
	}
	return nil
}

// List returns the `limit` most recent attempts, newest first. A non-empty `dep` restricts the list to that
// dependency.
func (s *Store) List(dep string, limit int) ([]Row, error) {
	query := `SELECT id, ts, dep, version, strategy, outcome, reason, duration_ms FROM attempts`
	var args []interface{}
	if dep != "" {
		query += ` WHERE dep = ?`
		args = append(args, dep)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var (
			r          Row
			ts         string
			strategy   string
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &ts, &r.Dep, &r.Version, &strategy, &r.Outcome, &r.Reason, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		r.Time, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", ts, err)
		}
		r.Strategy = resolve.StrategyName(strategy)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		result = append(result, r)
	}
	return result, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
