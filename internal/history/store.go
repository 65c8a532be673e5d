// Package history persists status transitions to a SQLite journal so a
// session's activity can be inspected after the fact.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/twistedxcom/vigil/internal/logging"
	"github.com/twistedxcom/vigil/internal/monitor"
)

var histLog = logging.ForComponent(logging.CompHistory)

// SchemaVersion tracks the current journal schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// globalScope marks the row recording the reduced all-apps status.
const globalScope = "global"

// Transition is one recorded status change.
type Transition struct {
	At     time.Time
	Scope  string // "global" or the app name
	PID    int    // 0 for the global scope
	Status monitor.DisplayStatus
}

// Store journals status transitions. Record diffs each snapshot against
// the last recorded state and inserts only actual changes, so a steady
// status costs nothing. Thread-safe for concurrent use within one
// process; multiple processes can read via WAL mode + busy timeout.
type Store struct {
	db *sql.DB

	mu         sync.Mutex
	lastGlobal monitor.DisplayStatus
	lastApps   map[int]appState
}

type appState struct {
	name   string
	status monitor.DisplayStatus
}

// Open creates or opens the journal at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("history: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: busy timeout: %w", err)
	}

	s := &Store{
		db:       db,
		lastApps: make(map[int]appState),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints WAL and closes the database.
func (s *Store) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("history: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS transitions (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			at     INTEGER NOT NULL,
			scope  TEXT NOT NULL,
			pid    INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("history: create transitions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions(at)
	`); err != nil {
		return fmt.Errorf("history: create index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("history: set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit migrate: %w", err)
	}
	return nil
}

// Record journals the transitions snap implies: a changed global status,
// changed per-app statuses, and a terminal not_running row for apps that
// left the snapshot. The first snapshot after Open records everything.
func (s *Store) Record(snap monitor.StatusSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := snap.At
	if at.IsZero() {
		at = time.Now()
	}

	var rows []Transition
	if snap.Global != s.lastGlobal {
		rows = append(rows, Transition{At: at, Scope: globalScope, Status: snap.Global})
	}

	seen := make(map[int]bool, len(snap.Apps))
	for _, app := range snap.Apps {
		seen[app.PID] = true
		prev, ok := s.lastApps[app.PID]
		if !ok || prev.status != app.Status {
			rows = append(rows, Transition{At: at, Scope: app.Name, PID: app.PID, Status: app.Status})
		}
	}
	for pid, prev := range s.lastApps {
		if !seen[pid] && prev.status != monitor.StatusNotRunning {
			rows = append(rows, Transition{At: at, Scope: prev.name, PID: pid, Status: monitor.StatusNotRunning})
		}
	}

	if len(rows) == 0 {
		s.commitState(snap)
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("history: begin record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range rows {
		if _, err := tx.Exec(
			`INSERT INTO transitions (at, scope, pid, status) VALUES (?, ?, ?, ?)`,
			r.At.UnixMilli(), r.Scope, r.PID, string(r.Status),
		); err != nil {
			return fmt.Errorf("history: insert transition: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit record: %w", err)
	}

	s.commitState(snap)
	return nil
}

// commitState advances the diff baseline. Caller holds s.mu.
func (s *Store) commitState(snap monitor.StatusSnapshot) {
	s.lastGlobal = snap.Global
	s.lastApps = make(map[int]appState, len(snap.Apps))
	for _, app := range snap.Apps {
		s.lastApps[app.PID] = appState{name: app.Name, status: app.Status}
	}
}

// Recent returns up to limit transitions, newest first.
func (s *Store) Recent(limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT at, scope, pid, status FROM transitions
		ORDER BY at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			atMillis int64
			t        Transition
			status   string
		)
		if err := rows.Scan(&atMillis, &t.Scope, &t.PID, &status); err != nil {
			return nil, fmt.Errorf("history: scan transition: %w", err)
		}
		t.At = time.UnixMilli(atMillis)
		t.Status = monitor.DisplayStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Prune deletes transitions older than retention. Returns rows removed.
func (s *Store) Prune(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.db.Exec(`DELETE FROM transitions WHERE at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		histLog.Info("history_pruned", slog.Int64("rows", n))
	}
	return n, nil
}

// Attach subscribes the store to pub so every published snapshot is
// journaled. Write failures are logged, never propagated to the
// publisher.
func (s *Store) Attach(pub *monitor.Publisher) monitor.Subscription {
	return pub.Subscribe(func(snap monitor.StatusSnapshot) {
		if err := s.Record(snap); err != nil {
			histLog.Error("history_record_failed", slog.String("error", err.Error()))
		}
	})
}
