package leaderboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

var ErrPoolClosed = errors.New("connection pool closed")

// Pool hands out a fixed set of exclusive connections. Acquire blocks until
// one is free; Release wakes one waiter.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	free   []*sql.Conn
	all    []*sql.Conn
	closed bool
}

func NewPool(ctx context.Context, db *sql.DB, size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be > 0")
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < size; i++ {
		c, err := db.Conn(ctx)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("open pool conn %d: %w", i, err)
		}
		p.all = append(p.all, c)
		p.free = append(p.free, c)
	}
	return p, nil
}

func (p *Pool) Acquire() (*sql.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.free) == 0 && !p.closed {
		p.cond.Wait()
	}
	if p.closed {
		return nil, ErrPoolClosed
	}
	c := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return c, nil
}

func (p *Pool) Release(c *sql.Conn) {
	p.mu.Lock()
	p.free = append(p.free, c)
	p.mu.Unlock()
	p.cond.Signal()
}

// Size is the number of connections; Available how many are free now.
func (p *Pool) Size() int { return len(p.all) }

func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Close fails pending and future Acquire calls and closes every connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.all
	p.mu.Unlock()
	p.cond.Broadcast()

	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
