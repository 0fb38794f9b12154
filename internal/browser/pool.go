// internal/browser/pool.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPoolClosed is returned by Get after Close.
var ErrPoolClosed = errors.New("pool is closed")

// SessionFactory opens a new session.
type SessionFactory func(ctx context.Context) (Session, error)

// Pool bounds the number of live sessions and reuses idle ones.
type Pool struct {
	factory SessionFactory
	idle    chan Session
	slots   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool holding at most maxSize sessions.
func NewPool(factory SessionFactory, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 4
	}
	return &Pool{
		factory: factory,
		idle:    make(chan Session, maxSize),
		slots:   make(chan struct{}, maxSize),
	}
}

// Get returns an idle session, opens a new one while under the limit, or
// waits for one to be returned.
func (p *Pool) Get(ctx context.Context) (Session, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	select {
	case s := <-p.idle:
		return s, nil
	default:
	}

	select {
	case s := <-p.idle:
		return s, nil
	case p.slots <- struct{}{}:
		s, err := p.factory(ctx)
		if err != nil {
			<-p.slots
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put hands a healthy session back for reuse.
func (p *Pool) Put(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		s.Close()
		<-p.slots
		return
	}
	p.idle <- s
}

// Discard closes a broken session and frees its slot.
func (p *Pool) Discard(s Session) {
	s.Close()
	<-p.slots
}

// Size returns the number of idle sessions.
func (p *Pool) Size() int {
	return len(p.idle)
}

// TotalSize returns the number of live sessions.
func (p *Pool) TotalSize() int {
	return len(p.slots)
}

// Close closes idle sessions. Sessions still in use are closed when returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	for {
		select {
		case s := <-p.idle:
			s.Close()
			<-p.slots
		default:
			return nil
		}
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
