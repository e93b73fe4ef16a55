package leaderboard

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is one retired dog.
type Record struct {
	ID       string
	Name     string
	Score    int
	PlayTime time.Duration
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	EnqueuedTotal    uint64
	DroppedTotal     uint64
	WrittenTotal     uint64
	WriteErrorsTotal uint64
}

type req struct {
	records []Record
	done    chan error
}

// Store keeps retired players in sqlite. Every statement runs on a pooled
// connection; Enqueue hands batches to a background writer.
type Store struct {
	db   *sql.DB
	pool *Pool
	log  *log.Logger

	// mu guards sends on ch against Close.
	mu     sync.RWMutex
	closed bool
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once

	enqueued    atomic.Uint64
	dropped     atomic.Uint64
	written     atomic.Uint64
	writeErrors atomic.Uint64
}

const queueCapacity = 4096

func Open(path string, poolSize int, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	pool, err := NewPool(context.Background(), db, poolSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{
		db:   db,
		pool: pool,
		log:  logger,
		ch:   make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS retired_players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			score INTEGER NOT NULL CHECK (score >= 0),
			play_time_ms INTEGER NOT NULL CHECK (play_time_ms >= 0)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_retired_players_rank
			ON retired_players(score DESC, play_time_ms, name);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Pool() *Pool { return s.pool }

// Save writes the batch in one transaction. Records without an id get a
// fresh UUID.
func (s *Store) Save(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	conn, err := s.pool.Acquire()
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO retired_players(id,name,score,play_time_ms) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, id, r.Name, r.Score, r.PlayTime.Milliseconds()); err != nil {
			return fmt.Errorf("insert %q: %w", r.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.written.Add(uint64(len(records)))
	return nil
}

// List returns records ranked by score (desc), play time and name.
func (s *Store) List(ctx context.Context, offset, limit int) ([]Record, error) {
	if offset < 0 || limit < 0 {
		return nil, fmt.Errorf("negative offset or limit")
	}
	conn, err := s.pool.Acquire()
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	rows, err := conn.QueryContext(ctx,
		`SELECT id, name, score, play_time_ms FROM retired_players
		 ORDER BY score DESC, play_time_ms, name
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		var ms int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Score, &ms); err != nil {
			return nil, err
		}
		r.PlayTime = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Enqueue hands a batch to the background writer without blocking. It
// reports false when the batch was dropped.
func (s *Store) Enqueue(records []Record) bool {
	if s == nil || len(records) == 0 {
		return false
	}
	batch := append([]Record(nil), records...)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- req{records: batch}:
		s.enqueued.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Flush waits until every batch queued before the call has been written.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan error, 1)
	if err := s.send(ctx, req{done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) send(ctx context.Context, r req) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrPoolClosed
	}
	select {
	case s.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) Stats() Stats {
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		EnqueuedTotal:    s.enqueued.Load(),
		DroppedTotal:     s.dropped.Load(),
		WrittenTotal:     s.written.Load(),
		WriteErrorsTotal: s.writeErrors.Load(),
	}
}

func (s *Store) loop() {
	ctx := context.Background()
	for r := range s.ch {
		if r.done != nil {
			r.done <- nil
			continue
		}
		if err := s.Save(ctx, r.records); err != nil {
			s.writeErrors.Add(1)
			if s.log != nil {
				s.log.Printf("leaderboard: save %d records: %v", len(r.records), err)
			}
		}
	}
}

// Close drains the queue, then closes the pool and the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		s.wg.Wait()
		if perr := s.pool.Close(); perr != nil {
			err = perr
		}
		if derr := s.db.Close(); derr != nil && err == nil {
			err = derr
		}
	})
	return err
}
