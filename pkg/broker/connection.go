package broker

import (
	"sync"
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

// connection is the broker-internal ValidatorConnection: the live session
// state for one validator, from a successful handshake until disconnect.
type connection struct {
	id         model.ValidatorId
	openedAt   time.Time
	peerAddr   string
	outbound   chan model.Action
	mu         sync.Mutex
	pendingIDs map[string]struct{}
	closed     chan struct{}
	closeOnce  sync.Once
}

func newConnection(id model.ValidatorId, peerAddr string, queueSize int) *connection {
	return &connection{
		id:         id,
		openedAt:   time.Now(),
		peerAddr:   peerAddr,
		outbound:   make(chan model.Action, queueSize),
		pendingIDs: make(map[string]struct{}),
		closed:     make(chan struct{}),
	}
}

// enqueue attempts a non-blocking push onto the outbound action queue.
// It reports false if the queue is full (BackpressureFull at the caller).
func (c *connection) enqueue(a model.Action) bool {
	select {
	case c.outbound <- a:
		c.mu.Lock()
		c.pendingIDs[a.ActionID] = struct{}{}
		c.mu.Unlock()
		return true
	default:
		return false
	}
}

// close marks the connection closed; safe to call more than once.
func (c *connection) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// pendingActionIDs returns a snapshot of this connection's outstanding
// action ids, used to fail them on disconnect/supersede.
func (c *connection) pendingActionIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.pendingIDs))
	for id := range c.pendingIDs {
		ids = append(ids, id)
	}
	return ids
}

func (c *connection) forgetPending(actionID string) {
	c.mu.Lock()
	delete(c.pendingIDs, actionID)
	c.mu.Unlock()
}
