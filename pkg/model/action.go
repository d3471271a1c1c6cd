package model

import "time"

// ActionKind enumerates the remediation operations the executor can run.
type ActionKind string

const (
	ActionRestartValidator ActionKind = "RestartValidator"
	ActionFlushLedger      ActionKind = "FlushLedger"
	ActionRotateSnapshot   ActionKind = "RotateSnapshot"
	ActionKillProcess      ActionKind = "KillProcess"
	ActionRunCommand       ActionKind = "RunCommand"
	ActionAdminHttp        ActionKind = "AdminHttp"
)

// ValidActionKinds is the closed set accepted from any action source,
// rulebook or LLM.
var ValidActionKinds = map[ActionKind]bool{
	ActionRestartValidator: true,
	ActionFlushLedger:      true,
	ActionRotateSnapshot:   true,
	ActionKillProcess:      true,
	ActionRunCommand:       true,
	ActionAdminHttp:        true,
}

// Action is an instruction to perform a remediation step on a specific
// validator. ActionID is unique across the broker's lifetime.
type Action struct {
	ActionID    string
	ValidatorID ValidatorId
	Kind        ActionKind
	Params      map[string]string
	CreatedAt   time.Time
	DeadlineMs  int64
}

// ResultStatus is the terminal outcome of a dispatched Action.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "Success"
	StatusFailure ResultStatus = "Failure"
	StatusTimeout ResultStatus = "Timeout"
)

// ActionResult is the terminal outcome returned for a previously
// dispatched Action, correlated back to it by ActionID.
type ActionResult struct {
	ActionID    string
	ValidatorID ValidatorId
	Status      ResultStatus
	ExitCode    *int32
	StdoutTail  string
	StderrTail  string
	DurationMs  int64
	CompletedAt time.Time
	// Reason carries a short diagnostic tag for non-Success terminal
	// states, e.g. "superseded", "disconnected", "shutdown".
	Reason string
}
