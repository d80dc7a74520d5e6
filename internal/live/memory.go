package live

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryBroker routes messages between subscribers of the same process.
// Publish blocks until every matching subscriber has buffered the message,
// the subscriber goes away, or ctx ends.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed atomic.Bool
}

type subscription struct {
	pattern string
	ch      chan Message
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[uint64]*subscription)}
}

func (b *MemoryBroker) Name() string { return "memory" }

func (b *MemoryBroker) Publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	if subject == "" {
		return ErrInvalidSubject
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		msg := Message{Subject: subject, Data: append([]byte(nil), data...)}
		select {
		case sub.ch <- msg:
		case <-sub.ctx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, pattern string, bufSize int) (<-chan Message, func(), error) {
	if b.closed.Load() {
		return nil, nil, ErrBrokerClosed
	}
	if pattern == "" {
		return nil, nil, ErrInvalidSubject
	}
	if bufSize < 0 {
		bufSize = 0
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{pattern: pattern, ch: make(chan Message, bufSize), ctx: subCtx, cancel: cancel}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	// Cancel first so a blocked Publish lets go of the read lock.
	go func() {
		<-subCtx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.subs[id] == sub {
			delete(b.subs, id)
			close(sub.ch)
		}
	}()

	return sub.ch, cancel, nil
}

// Subscribers returns the number of live subscriptions.
func (b *MemoryBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *MemoryBroker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.RLock()
	for _, sub := range b.subs {
		sub.cancel()
	}
	b.mu.RUnlock()
	return nil
}
