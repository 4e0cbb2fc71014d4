package telemetry

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/heapcore/gc"

	_ "modernc.org/sqlite"
)

// ErrNoCycles indicates that no cycle has been recorded for a heap.
var ErrNoCycles = errors.New("no cycles recorded")

// Store persists collection cycle statistics in SQLite, keyed by heap ID.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// OpenStore opens or creates the cycle database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cycles (
		heap        TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		started_at  INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		reclaimed   INTEGER NOT NULL,
		freed_bytes INTEGER NOT NULL,
		live        INTEGER NOT NULL,
		live_bytes  INTEGER NOT NULL,
		PRIMARY KEY (heap, seq)
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordCycle appends the statistics of one cycle of heap.
func (s *Store) RecordCycle(heap uuid.UUID, stats gc.CycleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO cycles
		(heap, seq, started_at, duration_ns, reclaimed, freed_bytes, live, live_bytes)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM cycles WHERE heap = ?), ?, ?, ?, ?, ?, ?)`,
		heap.String(), heap.String(),
		stats.Timestamp.UnixNano(), int64(stats.Duration),
		stats.Reclaimed, int64(stats.FreedBytes), stats.Live, int64(stats.LiveBytes),
	)
	if err != nil {
		return fmt.Errorf("recording cycle: %w", err)
	}
	return nil
}

// Cycles returns every recorded cycle of heap in order.
func (s *Store) Cycles(heap uuid.UUID) ([]gc.CycleStats, error) {
	rows, err := s.db.Query(`SELECT started_at, duration_ns, reclaimed, freed_bytes, live, live_bytes
		FROM cycles WHERE heap = ? ORDER BY seq`, heap.String())
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var out []gc.CycleStats
	for rows.Next() {
		var (
			startedAt, duration, freed, liveBytes int64
			st                                    gc.CycleStats
		)
		if err := rows.Scan(&startedAt, &duration, &st.Reclaimed, &freed, &st.Live, &liveBytes); err != nil {
			return nil, fmt.Errorf("scanning cycle: %w", err)
		}
		st.Timestamp = time.Unix(0, startedAt)
		st.Duration = time.Duration(duration)
		st.FreedBytes = uint64(freed)
		st.LiveBytes = uint64(liveBytes)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cycles: %w", err)
	}
	return out, nil
}

// Summary aggregates the recorded cycles of one heap.
type Summary struct {
	Cycles     int
	Reclaimed  int64
	FreedBytes int64
	Total      time.Duration
}

// Summarize aggregates the recorded cycles of heap. It returns ErrNoCycles
// when none were recorded.
func (s *Store) Summarize(heap uuid.UUID) (Summary, error) {
	var sum Summary
	var total int64
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(reclaimed), 0),
		COALESCE(SUM(freed_bytes), 0), COALESCE(SUM(duration_ns), 0)
		FROM cycles WHERE heap = ?`, heap.String()).
		Scan(&sum.Cycles, &sum.Reclaimed, &sum.FreedBytes, &total)
	if err != nil {
		return Summary{}, fmt.Errorf("summarizing cycles: %w", err)
	}
	if sum.Cycles == 0 {
		return Summary{}, ErrNoCycles
	}
	sum.Total = time.Duration(total)
	return sum, nil
}
