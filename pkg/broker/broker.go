// Package broker implements the control-plane core: it terminates
// validator sessions, routes metrics to subscribers, routes actions to
// validators, and correlates returned results.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cyw0ng95/sentinel/internal/auth"
	"github.com/cyw0ng95/sentinel/internal/logging"
	"github.com/cyw0ng95/sentinel/internal/wire"
	"github.com/cyw0ng95/sentinel/pkg/model"
	"github.com/cyw0ng95/sentinel/pkg/ratelimit"
)

// Errors Submit can return to an action submitter.
var (
	ErrNotConnected     = errors.New("broker: validator not connected")
	ErrBackpressureFull = errors.New("broker: outbound queue full")
	ErrInvalidAction    = errors.New("broker: invalid action")
)

// authLimiterCleanupEvery and authLimiterMaxIdle bound the auth rate
// limiter's per-peer-address bucket map as validators reconnect from
// ephemeral source ports over the broker's lifetime.
const (
	authLimiterCleanupEvery = 60
	authLimiterMaxIdle      = 10 * time.Minute
)

// Config tunes the broker's bounded resources and timing. Zero values
// fall back to the defaults noted per field.
type Config struct {
	OutboundQueueSize  int           // default 64
	SubscriberQueueCap int           // default 256
	SweepPeriod        time.Duration // default 1s
	ShutdownGrace      time.Duration // default 2s
	AuthRateLimit      int           // default 5
	AuthRateWindow     time.Duration // default 1m
}

func (c *Config) applyDefaults() {
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = 64
	}
	if c.SubscriberQueueCap <= 0 {
		c.SubscriberQueueCap = 256
	}
	if c.SweepPeriod <= 0 {
		c.SweepPeriod = time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 2 * time.Second
	}
	if c.AuthRateLimit <= 0 {
		c.AuthRateLimit = 5
	}
	if c.AuthRateWindow <= 0 {
		c.AuthRateWindow = time.Minute
	}
}

// Broker is the control-plane core. It holds no persistent state: every
// map here is rebuilt from a fresh process start.
type Broker struct {
	cfg     Config
	logger  *logging.Logger
	configs map[model.ValidatorId]model.ValidatorConfig

	mu          sync.Mutex
	connections map[model.ValidatorId]*connection

	pending     *pendingStore
	bcast       *broadcaster
	authLimiter *ratelimit.PeerLimiter
	orphanCount uint64

	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New builds a Broker for the given set of validator configs.
func New(configs []model.ValidatorConfig, cfg Config, logger *logging.Logger) *Broker {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	byID := make(map[model.ValidatorId]model.ValidatorConfig, len(configs))
	for _, c := range configs {
		byID[c.ID] = c
	}
	return &Broker{
		cfg:         cfg,
		logger:      logger,
		configs:     byID,
		connections: make(map[model.ValidatorId]*connection),
		pending:     newPendingStore(),
		bcast:       newBroadcaster(cfg.SubscriberQueueCap),
		authLimiter: ratelimit.NewPeerLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow),
		shutdownCh:  make(chan struct{}),
	}
}

// Start launches the 1Hz pending-deadline sweeper.
func (b *Broker) Start() {
	b.wg.Add(1)
	go b.sweepLoop()
}

func (b *Broker) sweepLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.SweepPeriod)
	defer ticker.Stop()
	ticks := 0
	for {
		select {
		case <-b.shutdownCh:
			return
		case now := <-ticker.C:
			for _, e := range b.pending.expired(now) {
				b.forgetOnConnection(e.action.ValidatorID, e.action.ActionID)
				e.resolve(model.ActionResult{
					ActionID:    e.action.ActionID,
					ValidatorID: e.action.ValidatorID,
					Status:      model.StatusTimeout,
					CompletedAt: now,
				})
			}
			ticks++
			if ticks%authLimiterCleanupEvery == 0 {
				b.authLimiter.Cleanup(authLimiterMaxIdle)
			}
		}
	}
}

// Shutdown drains pending actions as Failure{reason=shutdown} after the
// configured grace period, then closes every session.
func (b *Broker) Shutdown(ctx context.Context) error {
	close(b.shutdownCh)
	b.wg.Wait()

	select {
	case <-time.After(b.cfg.ShutdownGrace):
	case <-ctx.Done():
	}

	now := time.Now()
	for _, e := range b.pending.drainAll() {
		e.resolve(model.ActionResult{
			ActionID:    e.action.ActionID,
			ValidatorID: e.action.ValidatorID,
			Status:      model.StatusFailure,
			Reason:      "shutdown",
			CompletedAt: now,
		})
	}

	b.mu.Lock()
	conns := make([]*connection, 0, len(b.connections))
	for _, c := range b.connections {
		conns = append(conns, c)
	}
	b.connections = make(map[model.ValidatorId]*connection)
	b.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
	return nil
}

// HandleHello authenticates a validator's Hello frame, evicting any prior
// session for the same id so at most one connection per validator is ever
// live. peerAddr rate-limits repeated attempts from one source.
func (b *Broker) HandleHello(peerAddr string, hello wire.Hello) (wire.HelloAck, *connection) {
	if ok, retryAfter := b.authLimiter.AllowWithRetryAfter(peerAddr); !ok {
		return wire.HelloAck{Accepted: false, Reason: fmt.Sprintf("rate_limited retry_after=%s", retryAfter.Round(time.Second))}, nil
	}

	id := model.ValidatorId(hello.ValidatorID)
	cfg, ok := b.configs[id]
	if !ok || !auth.Verify(cfg.AuthTokenHash, hello.AuthToken) {
		return wire.HelloAck{Accepted: false, Reason: "auth"}, nil
	}

	conn := newConnection(id, peerAddr, b.cfg.OutboundQueueSize)
	b.installConnection(conn)
	return wire.HelloAck{Accepted: true}, conn
}

func (b *Broker) installConnection(conn *connection) {
	b.mu.Lock()
	old, existed := b.connections[conn.id]
	b.connections[conn.id] = conn
	b.mu.Unlock()

	if existed {
		old.close()
		b.failPending(old.pendingActionIDs(), "superseded")
	}
}

func (b *Broker) failPending(actionIDs []string, reason string) {
	now := time.Now()
	for _, id := range actionIDs {
		if e, ok := b.pending.resolveOrDrop(id); ok {
			e.resolve(model.ActionResult{
				ActionID:    id,
				ValidatorID: e.action.ValidatorID,
				Status:      model.StatusTimeout,
				Reason:      reason,
				CompletedAt: now,
			})
		}
	}
}

// Disconnect tears down conn (TCP drop, malformed frame) and fails its
// pending actions as Timeout{reason}. The map entry is removed only if
// conn is still the live connection for its id — a superseded session's
// late teardown must not evict its replacement.
func (b *Broker) Disconnect(conn *connection, reason string) {
	b.mu.Lock()
	if cur, ok := b.connections[conn.id]; ok && cur == conn {
		delete(b.connections, conn.id)
	}
	b.mu.Unlock()
	conn.close()
	b.failPending(conn.pendingActionIDs(), reason)
}

func (b *Broker) getConnection(id model.ValidatorId) *connection {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connections[id]
}

func (b *Broker) forgetOnConnection(id model.ValidatorId, actionID string) {
	if conn := b.getConnection(id); conn != nil {
		conn.forgetPending(actionID)
	}
}

// IngestSample publishes a validator-originated sample to every
// subscriber.
func (b *Broker) IngestSample(sample model.MetricSample) {
	b.bcast.publish(sample)
}

// IngestResult correlates a returned ActionResult with its pending entry.
// An unmatched action_id is logged and counted, never propagated.
func (b *Broker) IngestResult(result model.ActionResult) {
	e, ok := b.pending.resolveOrDrop(result.ActionID)
	if !ok {
		atomic.AddUint64(&b.orphanCount, 1)
		b.logger.Warn("orphan action result action_id=%s validator_id=%s", result.ActionID, result.ValidatorID)
		return
	}
	b.forgetOnConnection(e.action.ValidatorID, result.ActionID)
	e.resolve(result)
}

// Handle is returned by Submit; callers await the terminal ActionResult.
type Handle struct {
	action   model.Action
	resultCh chan model.ActionResult
}

// ActionID returns the id of the submitted action.
func (h *Handle) ActionID() string { return h.action.ActionID }

// Wait blocks until the action resolves or ctx is done.
func (h *Handle) Wait(ctx context.Context) (model.ActionResult, error) {
	select {
	case r := <-h.resultCh:
		return r, nil
	case <-ctx.Done():
		return model.ActionResult{}, ctx.Err()
	}
}

// Submit enrolls action in pending and enqueues it on the target
// validator's outbound queue, returning a handle the caller can await.
func (b *Broker) Submit(action model.Action) (*Handle, error) {
	if !model.ValidActionKinds[action.Kind] {
		return nil, ErrInvalidAction
	}
	conn := b.getConnection(action.ValidatorID)
	if conn == nil {
		return nil, ErrNotConnected
	}
	if action.ActionID == "" {
		action.ActionID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	if action.DeadlineMs <= 0 {
		action.DeadlineMs = 30_000
	}

	entry := &pendingEntry{
		action:   action,
		deadline: time.Now().Add(time.Duration(action.DeadlineMs) * time.Millisecond),
		resultCh: make(chan model.ActionResult, 1),
	}
	b.pending.put(entry)

	if !conn.enqueue(action) {
		b.pending.remove(action.ActionID)
		return nil, ErrBackpressureFull
	}
	return &Handle{action: action, resultCh: entry.resultCh}, nil
}

// SubscribeMetrics returns an independent metric-sample subscriber with
// its own bounded buffer and drop counter.
func (b *Broker) SubscribeMetrics() *Subscriber { return b.bcast.subscribe() }

// UnsubscribeMetrics detaches sub from the broadcaster.
func (b *Broker) UnsubscribeMetrics(sub *Subscriber) { b.bcast.unsubscribe(sub) }

// Snapshot is the broker's point-in-time observability view.
type Snapshot struct {
	ConnectedIDs             []string          `json:"connected_ids"`
	PendingCount             int               `json:"pending_count"`
	LaggedDropsPerSubscriber map[string]uint64 `json:"lagged_drops_per_subscriber"`
	OrphanResults            uint64            `json:"orphan_results"`
}

// SnapshotState returns a point-in-time observability snapshot.
func (b *Broker) SnapshotState() Snapshot {
	b.mu.Lock()
	ids := make([]string, 0, len(b.connections))
	for id := range b.connections {
		ids = append(ids, string(id))
	}
	b.mu.Unlock()

	return Snapshot{
		ConnectedIDs:             ids,
		PendingCount:             b.pending.count(),
		LaggedDropsPerSubscriber: b.bcast.laggedDropsSnapshot(),
		OrphanResults:            atomic.LoadUint64(&b.orphanCount),
	}
}

