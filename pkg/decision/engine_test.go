package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cyw0ng95/sentinel/pkg/broker"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

// fakeSubmitter records every submitted action and can be configured to
// fail a fixed number of times before succeeding.
type fakeSubmitter struct {
	mu           sync.Mutex
	submitted    []model.Action
	failTimes    int
	failWith     error
	notConnected bool
}

func (f *fakeSubmitter) Submit(action model.Action) (*broker.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notConnected {
		return nil, broker.ErrNotConnected
	}
	if f.failTimes > 0 {
		f.failTimes--
		return nil, f.failWith
	}
	f.submitted = append(f.submitted, action)
	return &broker.Handle{}, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

func healthySample(id model.ValidatorId, now time.Time) model.MetricSample {
	return model.MetricSample{
		ValidatorID:     id,
		SlotLag:         model.Float(10),
		VoteSuccessRate: model.Float(0.99),
		CPUUsage:        model.Float(0.2),
		RAMUsageGB:      model.Float(4),
		DiskUsagePct:    model.Float(40),
		RPCQPS:          model.Float(50),
		RPCErrorRate:    model.Float(0.0),
		CapturedAt:      now.Unix(),
	}
}

func TestProcessHealthySampleSubmitsNothing(t *testing.T) {
	sub := &fakeSubmitter{}
	e := New(sub, Config{}, nil, nil)
	e.Process(context.Background(), healthySample("v1", time.Now()))
	if sub.count() != 0 {
		t.Fatalf("submitted = %d, want 0", sub.count())
	}
}

func TestProcessHighSlotLagSubmitsRestart(t *testing.T) {
	sub := &fakeSubmitter{}
	e := New(sub, Config{}, nil, nil)
	s := healthySample("v1", time.Now())
	s.SlotLag = model.Float(500)
	e.Process(context.Background(), s)

	if sub.count() != 1 {
		t.Fatalf("submitted = %d, want 1", sub.count())
	}
	if sub.submitted[0].Kind != model.ActionRestartValidator {
		t.Fatalf("kind = %v, want RestartValidator", sub.submitted[0].Kind)
	}
}

// Replaying the same unhealthy sample within cooldown submits exactly
// once.
func TestDebounceSuppressesRepeatSubmission(t *testing.T) {
	sub := &fakeSubmitter{}
	cfg := Config{Debounce: DebounceConfig{Cooldown: time.Minute, RollingCap: 5, RollingWindow: 10 * time.Minute}}
	e := New(sub, cfg, nil, nil)
	s := healthySample("v1", time.Now())
	s.SlotLag = model.Float(500)

	for i := 0; i < 5; i++ {
		e.Process(context.Background(), s)
	}
	if sub.count() != 1 {
		t.Fatalf("submitted = %d, want 1 under cooldown", sub.count())
	}
}

func TestRollingCapBoundsActionStorm(t *testing.T) {
	sub := &fakeSubmitter{}
	cfg := Config{Debounce: DebounceConfig{Cooldown: 0, RollingCap: 2, RollingWindow: 10 * time.Minute}}
	e := New(sub, cfg, nil, nil)
	s := healthySample("v1", time.Now())
	s.SlotLag = model.Float(500)

	for i := 0; i < 5; i++ {
		e.Process(context.Background(), s)
	}
	if sub.count() != 2 {
		t.Fatalf("submitted = %d, want 2 (rolling cap)", sub.count())
	}
}

// LLM fallback safety: malformed LLM output yields the same action list
// the rulebook path would produce.
type failingSynthesizer struct{}

func (failingSynthesizer) Synthesize(ctx context.Context, sample model.MetricSample, issue model.Issue) ([]ActionSpec, error) {
	return nil, errors.New("malformed json")
}

func TestLLMFallbackMatchesRulebook(t *testing.T) {
	sub := &fakeSubmitter{}
	e := New(sub, Config{}, failingSynthesizer{}, nil)
	s := healthySample("v1", time.Now())
	s.DiskUsagePct = model.Float(95)
	e.Process(context.Background(), s)

	want := RulebookActions(model.IssueHighDisk)
	if sub.count() != len(want) {
		t.Fatalf("submitted = %d, want %d (rulebook)", sub.count(), len(want))
	}
	if sub.submitted[0].Kind != want[0].Kind {
		t.Fatalf("kind = %v, want %v", sub.submitted[0].Kind, want[0].Kind)
	}
}

func TestNotConnectedDiscardsWithoutDebouncing(t *testing.T) {
	sub := &fakeSubmitter{notConnected: true}
	e := New(sub, Config{}, nil, nil)
	s := healthySample("v1", time.Now())
	s.SlotLag = model.Float(500)

	e.Process(context.Background(), s)
	if sub.count() != 0 {
		t.Fatalf("submitted = %d, want 0", sub.count())
	}
	if !e.debounce.allow("v1", model.IssueHighSlotLag, time.Now()) {
		t.Fatal("debounce window should not be marked on NotConnected")
	}
}

func TestBackpressureRetriesThenSucceeds(t *testing.T) {
	sub := &fakeSubmitter{failTimes: 1, failWith: broker.ErrBackpressureFull}
	cfg := Config{MaxSubmitWait: time.Second}
	e := New(sub, cfg, nil, nil)
	s := healthySample("v1", time.Now())
	s.SlotLag = model.Float(500)

	e.Process(context.Background(), s)
	if sub.count() != 1 {
		t.Fatalf("submitted = %d, want 1 after retry", sub.count())
	}
}

func TestStaleAndInvalidMetricsEmitNothing(t *testing.T) {
	sub := &fakeSubmitter{}
	e := New(sub, Config{}, nil, nil)

	stale := healthySample("v1", time.Now().Add(-time.Hour))
	e.Process(context.Background(), stale)

	invalid := healthySample("v1", time.Now())
	invalid.VoteSuccessRate = model.OptionalFloat{} // required field absent
	e.Process(context.Background(), invalid)

	if sub.count() != 0 {
		t.Fatalf("submitted = %d, want 0 for stale/invalid samples", sub.count())
	}
}
