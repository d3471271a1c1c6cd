package wire

// Schema types are the canonical, wire-stable JSON payloads carried inside
// a Frame. Field names are part of the wire contract — do not rename.

// Hello is the first frame a validator sends on a new session.
type Hello struct {
	ValidatorID string `json:"validator_id"`
	AuthToken   string `json:"auth_token"`
}

// HelloAck is the broker's reply to Hello.
type HelloAck struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Sample mirrors model.MetricSample over the wire; optional fields use a
// pointer so "absent" round-trips as JSON null rather than zero.
type Sample struct {
	ValidatorID     string   `json:"validator_id"`
	SlotLag         *float64 `json:"slot_lag,omitempty"`
	VoteSuccessRate *float64 `json:"vote_success_rate,omitempty"`
	CPUUsage        *float64 `json:"cpu_usage,omitempty"`
	RAMUsageGB      *float64 `json:"ram_usage_gb,omitempty"`
	DiskUsagePct    *float64 `json:"disk_usage_pct,omitempty"`
	RPCQPS          *float64 `json:"rpc_qps,omitempty"`
	RPCErrorRate    *float64 `json:"rpc_error_rate,omitempty"`
	CapturedAt      int64    `json:"captured_at"`
}

// Result mirrors model.ActionResult over the wire.
type Result struct {
	ActionID    string `json:"action_id"`
	ValidatorID string `json:"validator_id"`
	Status      string `json:"status"`
	ExitCode    *int32 `json:"exit_code,omitempty"`
	StdoutTail  string `json:"stdout_tail"`
	StderrTail  string `json:"stderr_tail"`
	DurationMs  int64  `json:"duration_ms"`
	CompletedAt int64  `json:"completed_at"`
	Reason      string `json:"reason,omitempty"`
}

// ActionMsg mirrors model.Action over the wire.
type ActionMsg struct {
	ActionID    string            `json:"action_id"`
	ValidatorID string            `json:"validator_id"`
	Kind        string            `json:"kind"`
	Params      map[string]string `json:"params,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	DeadlineMs  int64             `json:"deadline_ms"`
}
