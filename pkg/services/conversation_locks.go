package services

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// convLock serializes the operations of one conversation.
type convLock struct {
	ch      chan struct{}
	holders int
}

// conversationLocks hands out one lock per conversation id. Idle locks live in a
// bounded LRU; a lock evicted while held or waited on is pinned until released.
type conversationLocks struct {
	mu     sync.Mutex
	cache  *lru.Cache[string, *convLock]
	pinned map[string]*convLock
}

func newConversationLocks(size int) (*conversationLocks, error) {
	l := &conversationLocks{pinned: make(map[string]*convLock)}
	cache, err := lru.NewWithEvict(size, func(id string, lk *convLock) {
		// Runs under l.mu, from inside cache.Add.
		if lk.holders > 0 {
			l.pinned[id] = lk
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation lock table: %w", err)
	}
	l.cache = cache
	return l, nil
}

// acquire blocks until the conversation's lock is held or ctx is done.
func (l *conversationLocks) acquire(ctx context.Context, id string) (release func(), err error) {
	l.mu.Lock()
	lk, ok := l.pinned[id]
	if !ok {
		lk, ok = l.cache.Get(id)
	}
	if !ok {
		lk = &convLock{ch: make(chan struct{}, 1)}
		l.cache.Add(id, lk)
	}
	lk.holders++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
	case <-ctx.Done():
		l.leave(id, lk)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.ch
			l.leave(id, lk)
		})
	}, nil
}

func (l *conversationLocks) leave(id string, lk *convLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.holders--
	if lk.holders == 0 && l.pinned[id] == lk {
		delete(l.pinned, id)
	}
}

// size reports the number of tracked locks.
func (l *conversationLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache.Len() + len(l.pinned)
}
