package broker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cyw0ng95/sentinel/internal/auth"
	"github.com/cyw0ng95/sentinel/internal/wire"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

func testConfig(t *testing.T, id, token string) model.ValidatorConfig {
	t.Helper()
	hash, err := auth.HashToken(token)
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	return model.ValidatorConfig{ID: model.ValidatorId(id), AuthTokenHash: hash}
}

func newTestBroker(t *testing.T, cfgs ...model.ValidatorConfig) *Broker {
	t.Helper()
	b := New(cfgs, Config{SweepPeriod: 20 * time.Millisecond}, nil)
	b.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	})
	return b
}

func TestHandshakeAcceptsValidSecret(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := newTestBroker(t, v1)

	ack, conn := b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})
	if !ack.Accepted || conn == nil {
		t.Fatalf("expected accepted handshake, got %+v", ack)
	}
}

func TestHandshakeRejectsWrongSecret(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := newTestBroker(t, v1)

	ack, conn := b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "wrong"})
	if ack.Accepted || conn != nil {
		t.Fatalf("expected rejected handshake, got %+v", ack)
	}
	if ack.Reason != "auth" {
		t.Fatalf("reason = %q, want auth", ack.Reason)
	}
}

// At most one connection per id; superseded pending actions terminate as
// Timeout{reason=superseded}.
func TestSupersedeEvictsPriorConnectionAndFailsPending(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := newTestBroker(t, v1)

	_, first := b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})
	handle, err := b.Submit(model.Action{ValidatorID: "v1", Kind: model.ActionRestartValidator, DeadlineMs: 30_000})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, second := b.HandleHello("peer-2", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})
	if second == first {
		t.Fatal("expected a new connection object")
	}

	select {
	case <-first.closed:
	case <-time.After(time.Second):
		t.Fatal("superseded connection was not closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Status != model.StatusTimeout || result.Reason != "superseded" {
		t.Fatalf("result = %+v, want Timeout/superseded", result)
	}
}

// A result resolves exactly the action it correlates to.
func TestResultCorrelatesToSubmittedAction(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := newTestBroker(t, v1)
	b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})

	handle, err := b.Submit(model.Action{ValidatorID: "v1", Kind: model.ActionRunCommand, DeadlineMs: 30_000})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	b.IngestResult(model.ActionResult{ActionID: handle.ActionID(), ValidatorID: "v1", Status: model.StatusSuccess})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.ActionID != handle.ActionID() || result.ValidatorID != "v1" {
		t.Fatalf("mismatched correlation: %+v", result)
	}
}

// Orphan results are dropped and counted, never crash the broker.
func TestOrphanResultIsCountedAndDropped(t *testing.T) {
	b := newTestBroker(t)
	b.IngestResult(model.ActionResult{ActionID: "does-not-exist", ValidatorID: "v1", Status: model.StatusSuccess})

	snap := b.SnapshotState()
	if snap.OrphanResults != 1 {
		t.Fatalf("orphan count = %d, want 1", snap.OrphanResults)
	}
}

func TestSubmitWithoutConnectionReturnsNotConnected(t *testing.T) {
	b := newTestBroker(t)
	_, err := b.Submit(model.Action{ValidatorID: "ghost", Kind: model.ActionRestartValidator})
	if err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestSubmitRejectsUnknownActionKind(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := newTestBroker(t, v1)
	b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})

	_, err := b.Submit(model.Action{ValidatorID: "v1", Kind: "NotARealKind"})
	if err != ErrInvalidAction {
		t.Fatalf("err = %v, want ErrInvalidAction", err)
	}
}

// Backpressure: a saturated outbound queue fails fast.
func TestSubmitBackpressureFull(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := New([]model.ValidatorConfig{v1}, Config{OutboundQueueSize: 2, SweepPeriod: time.Hour}, nil)
	b.Start()
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})

	for i := 0; i < 2; i++ {
		if _, err := b.Submit(model.Action{ValidatorID: "v1", Kind: model.ActionRunCommand, DeadlineMs: 30_000}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if _, err := b.Submit(model.Action{ValidatorID: "v1", Kind: model.ActionRunCommand, DeadlineMs: 30_000}); err != ErrBackpressureFull {
		t.Fatalf("err = %v, want ErrBackpressureFull", err)
	}
}

// Every submitted action reaches a terminal state within deadline_ms +
// sweep slack, even with no result ever returned.
func TestSweeperTimesOutUnresolvedAction(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := New([]model.ValidatorConfig{v1}, Config{SweepPeriod: 10 * time.Millisecond}, nil)
	b.Start()
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })
	b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})

	handle, err := b.Submit(model.Action{ValidatorID: "v1", Kind: model.ActionRunCommand, DeadlineMs: 30})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := handle.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Status != model.StatusTimeout {
		t.Fatalf("status = %v, want Timeout", result.Status)
	}
}

// Ingestion never blocks on a slow subscriber.
func TestBroadcastDropsOldestForSlowSubscriber(t *testing.T) {
	b := newTestBroker(t)
	sub := b.SubscribeMetrics()
	t.Cleanup(func() { b.UnsubscribeMetrics(sub) })

	// Never drain sub.Chan(): publishing must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.IngestSample(model.MetricSample{ValidatorID: "v1", CapturedAt: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ingestion blocked on a slow subscriber")
	}
	if sub.LaggedDrops() == 0 {
		t.Fatal("expected lagged drops for an undrained subscriber")
	}
}

func TestMultipleSubscribersEachGetSamples(t *testing.T) {
	b := newTestBroker(t)
	sub1 := b.SubscribeMetrics()
	sub2 := b.SubscribeMetrics()
	t.Cleanup(func() {
		b.UnsubscribeMetrics(sub1)
		b.UnsubscribeMetrics(sub2)
	})

	b.IngestSample(model.MetricSample{ValidatorID: "v1", CapturedAt: 42})

	for _, sub := range []*Subscriber{sub1, sub2} {
		select {
		case s := <-sub.Chan():
			if s.CapturedAt != 42 {
				t.Fatalf("captured_at = %d, want 42", s.CapturedAt)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive sample")
		}
	}
}

func TestSnapshotStateReportsConnectedIDs(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := newTestBroker(t, v1)
	b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})

	snap := b.SnapshotState()
	if len(snap.ConnectedIDs) != 1 || snap.ConnectedIDs[0] != "v1" {
		t.Fatalf("connected ids = %v", snap.ConnectedIDs)
	}
}

func TestAuthRateLimitBlocksRepeatedFailures(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := New([]model.ValidatorConfig{v1}, Config{AuthRateLimit: 2, AuthRateWindow: time.Minute, SweepPeriod: time.Hour}, nil)
	b.Start()
	t.Cleanup(func() { _ = b.Shutdown(context.Background()) })

	for i := 0; i < 2; i++ {
		ack, _ := b.HandleHello("attacker", wire.Hello{ValidatorID: "v1", AuthToken: "wrong"})
		if ack.Reason != "auth" {
			t.Fatalf("attempt %d: reason = %q, want auth", i, ack.Reason)
		}
	}
	ack, _ := b.HandleHello("attacker", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})
	if !strings.HasPrefix(ack.Reason, "rate_limited") {
		t.Fatalf("reason = %q, want rate_limited once the bucket is empty", ack.Reason)
	}
}

func TestShutdownFailsRemainingPendingActions(t *testing.T) {
	v1 := testConfig(t, "v1", "s1")
	b := New([]model.ValidatorConfig{v1}, Config{SweepPeriod: time.Hour, ShutdownGrace: 10 * time.Millisecond}, nil)
	b.Start()
	b.HandleHello("peer-1", wire.Hello{ValidatorID: "v1", AuthToken: "s1"})

	handle, err := b.Submit(model.Action{ValidatorID: "v1", Kind: model.ActionRunCommand, DeadlineMs: 30_000})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	result, err := handle.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Status != model.StatusFailure || result.Reason != "shutdown" {
		t.Fatalf("result = %+v, want Failure/shutdown", result)
	}
}
