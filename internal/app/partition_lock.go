package app

import (
	"context"
	"sync"
)

// partitionLocks serializes work per book. Locks are created on demand and
// dropped once nobody holds or waits for them.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[string]*partitionLock
}

type partitionLock struct {
	sem  chan struct{}
	refs int
}

func newPartitionLocks() *partitionLocks {
	return &partitionLocks{locks: make(map[string]*partitionLock)}
}

// acquire blocks until the book's lock is held or ctx is done.
func (p *partitionLocks) acquire(ctx context.Context, bookID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	l, ok := p.locks[bookID]
	if !ok {
		l = &partitionLock{sem: make(chan struct{}, 1)}
		p.locks[bookID] = l
	}
	l.refs++
	p.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		p.release(bookID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			p.release(bookID, l)
		})
	}, nil
}

func (p *partitionLocks) release(bookID string, l *partitionLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, bookID)
	}
}

func (p *partitionLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
