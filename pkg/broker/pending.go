package broker

import (
	"sync"
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

// pendingEntry tracks one dispatched Action awaiting a terminal result.
type pendingEntry struct {
	action   model.Action
	deadline time.Time
	resultCh chan model.ActionResult
	once     sync.Once
}

func (p *pendingEntry) resolve(result model.ActionResult) {
	p.once.Do(func() {
		p.resultCh <- result
		close(p.resultCh)
	})
}

// pendingStore is the broker's action_id -> pendingEntry correlation map,
// guarded by a short critical section; values are read out before any
// channel send happens outside the lock.
type pendingStore struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func newPendingStore() *pendingStore {
	return &pendingStore{entries: make(map[string]*pendingEntry)}
}

func (s *pendingStore) put(e *pendingEntry) {
	s.mu.Lock()
	s.entries[e.action.ActionID] = e
	s.mu.Unlock()
}

// resolveOrDrop looks up actionID; if found it removes and returns the
// entry so the caller can resolve it outside the lock. If absent, the
// result is an orphan and ok is false.
func (s *pendingStore) resolveOrDrop(actionID string) (*pendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[actionID]
	if !ok {
		return nil, false
	}
	delete(s.entries, actionID)
	return e, true
}

func (s *pendingStore) remove(actionID string) {
	s.mu.Lock()
	delete(s.entries, actionID)
	s.mu.Unlock()
}

func (s *pendingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// expired returns every entry whose deadline has elapsed as of now,
// removing them from the store.
func (s *pendingStore) expired(now time.Time) []*pendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*pendingEntry
	for id, e := range s.entries {
		if now.After(e.deadline) {
			out = append(out, e)
			delete(s.entries, id)
		}
	}
	return out
}

// drainAll removes and returns every pending entry, used on shutdown.
func (s *pendingStore) drainAll() []*pendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*pendingEntry, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, e)
		delete(s.entries, id)
	}
	return out
}
