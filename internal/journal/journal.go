// Package journal keeps a bounded in-memory trail of trading decisions,
// optionally mirrored to Postgres for operators who want history across
// restarts.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DefaultCapacity is the number of entries the ring retains.
const DefaultCapacity = 500

// Entry is one recorded decision.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Journal is a bounded decision log. Safe for concurrent use.
type Journal struct {
	log      zerolog.Logger
	store    *Store // nil when persistence is disabled
	capacity int

	mu      sync.RWMutex
	entries []Entry
}

// New creates a journal with the given capacity (DefaultCapacity if <= 0).
// store may be nil.
func New(capacity int, store *Store, log zerolog.Logger) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		log:      log,
		store:    store,
		capacity: capacity,
	}
}

// Record appends a decision, evicting the oldest entry past capacity.
func (j *Journal) Record(message string, data map[string]interface{}) {
	entry := Entry{
		Timestamp: time.Now(),
		Message:   message,
		Data:      data,
	}

	j.mu.Lock()
	j.entries = append(j.entries, entry)
	if len(j.entries) > j.capacity {
		j.entries = j.entries[len(j.entries)-j.capacity:]
	}
	j.mu.Unlock()

	j.log.Info().Fields(data).Msg(message)

	if j.store != nil {
		// Persistence is best effort; a database outage never blocks trading.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := j.store.Insert(ctx, entry, j.capacity); err != nil {
				j.log.Warn().Err(err).Msg("journal persist failed")
			}
		}()
	}
}

// Recent returns up to n entries, newest first.
func (j *Journal) Recent(n int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = j.entries[len(j.entries)-1-i]
	}
	return out
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Store persists journal entries to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the journal table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS decision_journal (
			id         BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			message    TEXT NOT NULL,
			data       JSONB
		)`)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Insert writes one entry and trims the table to the newest keep rows.
func (s *Store) Insert(ctx context.Context, entry Entry, keep int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO decision_journal (recorded_at, message, data) VALUES ($1, $2, $3)`,
		entry.Timestamp, entry.Message, entry.Data)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		DELETE FROM decision_journal
		WHERE id NOT IN (
			SELECT id FROM decision_journal ORDER BY id DESC LIMIT $1
		)`, keep)
	return err
}

// Recent loads up to n persisted entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recorded_at, message, data
		FROM decision_journal ORDER BY id DESC LIMIT $1`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Timestamp, &e.Message, &e.Data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
