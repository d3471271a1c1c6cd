package decision

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/cyw0ng95/sentinel/internal/logging"
	"github.com/cyw0ng95/sentinel/pkg/broker"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

// Synthesizer authors an action list for an unhealthy sample. The LLM path
// implements this; on any error the engine falls back to the rulebook.
type Synthesizer interface {
	Synthesize(ctx context.Context, sample model.MetricSample, issue model.Issue) ([]ActionSpec, error)
}

// Submitter is the subset of *broker.Broker the engine depends on, so
// tests can substitute a fake without standing up a real broker.
type Submitter interface {
	Submit(action model.Action) (*broker.Handle, error)
}

// Config tunes the engine's timing knobs beyond rule thresholds.
type Config struct {
	Thresholds    Thresholds
	Debounce      DebounceConfig
	MaxSubmitWait time.Duration // default 5s
}

func (c *Config) applyDefaults() {
	if c.MaxSubmitWait <= 0 {
		c.MaxSubmitWait = 5 * time.Second
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
	if c.Thresholds.CpuSustainedCount <= 0 {
		c.Thresholds.CpuSustainedCount = 3
	}
	if c.Debounce == (DebounceConfig{}) {
		c.Debounce = DefaultDebounceConfig()
	}
	if c.Debounce.RollingCap <= 0 {
		c.Debounce.RollingCap = 5
	}
	if c.Debounce.RollingWindow <= 0 {
		c.Debounce.RollingWindow = 10 * time.Minute
	}
}

// Engine consumes the broker's metric stream, classifies each sample, and
// submits remediation actions when a validator degrades.
type Engine struct {
	cfg       Config
	broker    Submitter
	evaluator *Evaluator
	debounce  *debouncer
	states    *stateTable
	llm       Synthesizer
	logger    *logging.Logger

	resultMu    sync.Mutex
	lastResults map[model.ValidatorId]model.ActionResult
}

// New builds an Engine. llm may be nil to disable the LLM path entirely
// (rulebook-only).
func New(sub Submitter, cfg Config, llm Synthesizer, logger *logging.Logger) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		cfg:         cfg,
		broker:      sub,
		evaluator:   NewEvaluator(cfg.Thresholds),
		debounce:    newDebouncer(cfg.Debounce),
		states:      newStateTable(),
		llm:         llm,
		logger:      logger,
		lastResults: make(map[model.ValidatorId]model.ActionResult),
	}
}

// Process classifies one sample and, when warranted, synthesizes and
// submits remediation actions. Under sustained backpressure each action is
// retried until roughly MaxSubmitWait has been spent backing off and is then
// dropped; the final jittered sleep can carry past MaxSubmitWait, and each
// action of a multi-action list waits on its own.
func (e *Engine) Process(ctx context.Context, sample model.MetricSample) {
	now := time.Now()
	issue := e.evaluator.Classify(sample, now)
	risk := Score(sample)
	e.logger.Debug("classified validator_id=%s issue=%s risk=%.2f", sample.ValidatorID, issue, risk)

	e.states.advance(sample.ValidatorID, issue)

	if issue == model.IssueHealthy || issue == model.IssueStaleMetrics || issue == model.IssueInvalidMetrics {
		return
	}

	if !e.debounce.allow(sample.ValidatorID, issue, now) {
		return
	}

	specs := e.synthesize(ctx, sample, issue)
	if len(specs) == 0 {
		return
	}

	var lastActionID string
	submitted := false
	for _, spec := range specs {
		action := model.Action{
			ValidatorID: sample.ValidatorID,
			Kind:        spec.Kind,
			Params:      spec.Params,
			DeadlineMs:  30_000,
		}
		handle, ok := e.submitWithBackoff(ctx, action)
		if !ok {
			continue
		}
		submitted = true
		lastActionID = handle.ActionID()
		go e.awaitResult(handle, time.Duration(action.DeadlineMs)*time.Millisecond)
	}

	if submitted {
		e.debounce.recordEmission(sample.ValidatorID, issue, now)
		e.states.markRecovering(sample.ValidatorID, issue, lastActionID)
	}
}

// synthesize tries the LLM path first (if configured), falling back to the
// rulebook on any failure — timeout, transport error, malformed JSON,
// unknown kind, or schema violation all land here as a plain error.
func (e *Engine) synthesize(ctx context.Context, sample model.MetricSample, issue model.Issue) []ActionSpec {
	if e.llm != nil {
		specs, err := e.llm.Synthesize(ctx, sample, issue)
		if err == nil {
			return specs
		}
		e.logger.Warn("llm synthesis failed, falling back to rulebook validator_id=%s issue=%s err=%v",
			sample.ValidatorID, issue, err)
	}
	return RulebookActions(issue)
}

// awaitResult collects the terminal ActionResult for an action this engine
// submitted. The result is informational only — the next sample drives the
// next decision — so it is recorded and logged, never fed back into
// debounce or state transitions.
func (e *Engine) awaitResult(handle *broker.Handle, deadline time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), deadline+time.Second)
	defer cancel()
	result, err := handle.Wait(ctx)
	if err != nil {
		return
	}
	e.RecordResult(result)
}

// RecordResult notes an action's terminal outcome for observability. It
// deliberately leaves the debounce window untouched: a result arriving
// after cooldown expiry must not suppress or trigger anything.
func (e *Engine) RecordResult(result model.ActionResult) {
	e.resultMu.Lock()
	e.lastResults[result.ValidatorID] = result
	e.resultMu.Unlock()
	e.logger.Info("action result validator_id=%s action_id=%s status=%s duration_ms=%d",
		result.ValidatorID, result.ActionID, result.Status, result.DurationMs)
}

// LastResult returns the most recent recorded result for id, if any.
func (e *Engine) LastResult(id model.ValidatorId) (model.ActionResult, bool) {
	e.resultMu.Lock()
	defer e.resultMu.Unlock()
	r, ok := e.lastResults[id]
	return r, ok
}

// submitWithBackoff retries BackpressureFull with jittered exponential
// backoff up to MaxSubmitWait, then drops the action. NotConnected is
// discarded immediately without marking the debounce window, so a
// reconnect produces a fresh attempt.
func (e *Engine) submitWithBackoff(ctx context.Context, action model.Action) (*broker.Handle, bool) {
	delay := time.Second
	waited := time.Duration(0)
	for {
		handle, err := e.broker.Submit(action)
		if err == nil {
			return handle, true
		}
		if errors.Is(err, broker.ErrNotConnected) {
			return nil, false
		}
		if !errors.Is(err, broker.ErrBackpressureFull) {
			e.logger.Warn("submit failed validator_id=%s kind=%s err=%v", action.ValidatorID, action.Kind, err)
			return nil, false
		}
		if waited >= e.cfg.MaxSubmitWait {
			e.logger.Warn("overloaded validator_id=%s kind=%s", action.ValidatorID, action.Kind)
			return nil, false
		}
		jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()))
		select {
		case <-time.After(jittered):
		case <-ctx.Done():
			return nil, false
		}
		waited += jittered
		delay *= 2
	}
}
