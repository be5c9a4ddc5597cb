package client

import (
	"sync"
	"time"
)

// QuotaSnapshot is one observation of the server-side quota record.
type QuotaSnapshot struct {
	Role       string
	Remaining  int
	Total      int
	ObservedAt time.Time
}

// QuotaCache is the local, fast-read mirror of the quota record. Reads never
// touch the network. Writers race only through out-of-order network
// completions, which the ObservedAt compare-and-set absorbs: a stale refresh
// finishing late can never overwrite a fresher value.
type QuotaCache struct {
	mu   sync.RWMutex
	cur  QuotaSnapshot
	subs map[int]chan QuotaSnapshot
	next int
}

func NewQuotaCache() *QuotaCache {
	return &QuotaCache{subs: make(map[int]chan QuotaSnapshot)}
}

// Read returns the last accepted snapshot immediately. The zero snapshot
// means nothing has been observed yet.
func (q *QuotaCache) Read() QuotaSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cur
}

// Update applies s if it is at least as fresh as the cached value, and
// broadcasts it to subscribers. Returns whether s was accepted.
func (q *QuotaCache) Update(s QuotaSnapshot) bool {
	q.mu.Lock()
	if s.ObservedAt.Before(q.cur.ObservedAt) {
		q.mu.Unlock()
		return false
	}
	q.cur = s
	subs := make([]chan QuotaSnapshot, 0, len(q.subs))
	for _, ch := range q.subs {
		subs = append(subs, ch)
	}
	q.mu.Unlock()

	for _, ch := range subs {
		// Drop-oldest so a slow listener never blocks the updater and the
		// channel always holds the most recent value.
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
	return true
}

// Subscribe registers a listener for accepted updates. The returned cancel
// func releases it.
func (q *QuotaCache) Subscribe() (<-chan QuotaSnapshot, func()) {
	ch := make(chan QuotaSnapshot, 1)
	q.mu.Lock()
	id := q.next
	q.next++
	q.subs[id] = ch
	q.mu.Unlock()

	cancel := func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}
	return ch, cancel
}
