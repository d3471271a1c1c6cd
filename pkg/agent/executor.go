package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cyw0ng95/sentinel/internal/logging"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

// Executor runs inbound Actions serially — parallelism is explicitly
// avoided so two disruptive operations never race on the same host.
type Executor struct {
	logger *logging.Logger
}

// NewExecutor builds an Executor.
func NewExecutor(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{logger: logger}
}

// Run dispatches action by kind, applying its deadline_ms as a hard
// timeout, and returns the terminal ActionResult. A handler panic is
// recovered and reported as Failure with exit_code -1; it never
// propagates to the caller or tears down the session.
func (e *Executor) Run(ctx context.Context, action model.Action) (result model.ActionResult) {
	start := time.Now()
	result = model.ActionResult{ActionID: action.ActionID, ValidatorID: action.ValidatorID}

	deadline := time.Duration(action.DeadlineMs) * time.Millisecond
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		stdout, stderr string
		err            error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("agent: handler panic: %v", r)}
			}
		}()
		handler, ok := handlers[action.Kind]
		if !ok {
			done <- outcome{err: fmt.Errorf("agent: no handler for kind %q", action.Kind)}
			return
		}
		stdout, stderr, err := handler(runCtx, action)
		done <- outcome{stdout: stdout, stderr: stderr, err: err}
	}()

	select {
	case o := <-done:
		result.DurationMs = time.Since(start).Milliseconds()
		result.CompletedAt = time.Now()
		result.StdoutTail = o.stdout
		result.StderrTail = o.stderr
		if o.err != nil {
			code := int32(-1)
			result.Status = model.StatusFailure
			result.ExitCode = &code
			result.Reason = o.err.Error()
		} else {
			result.Status = model.StatusSuccess
		}
		return result
	case <-runCtx.Done():
		result.DurationMs = time.Since(start).Milliseconds()
		result.CompletedAt = time.Now()
		result.Status = model.StatusTimeout
		result.Reason = "deadline_exceeded"
		return result
	}
}
