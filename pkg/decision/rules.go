// Package decision implements the control-plane's rule engine: it turns a
// MetricSample into an Issue and RiskScore, debounces repeated findings per
// validator, and synthesizes Actions to submit back to the broker.
package decision

import (
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

// Thresholds holds the rule-evaluation constants, so they can be tuned
// per deployment without touching the evaluator.
type Thresholds struct {
	StaleAfter        time.Duration
	SlotLagMax        float64
	VoteSuccessMin    float64
	CpuMax            float64
	CpuSustainedCount int
	DiskPctMax        float64
	RpcErrorRateMax   float64
	RpcQpsFloor       float64
}

// DefaultThresholds returns the stock rule thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleAfter:        60 * time.Second,
		SlotLagMax:        150,
		VoteSuccessMin:    0.80,
		CpuMax:            0.95,
		CpuSustainedCount: 3,
		DiskPctMax:        92,
		RpcErrorRateMax:   0.50,
		RpcQpsFloor:       1.0,
	}
}

// requiredPresent reports whether every field the rule chain depends on was
// reported by the scrape. A sample missing required fields is InvalidMetrics
// rather than silently evaluated against zero values.
func requiredPresent(s model.MetricSample) bool {
	return s.SlotLag.Present && s.VoteSuccessRate.Present && s.CPUUsage.Present &&
		s.DiskUsagePct.Present && s.RPCErrorRate.Present && s.RPCQPS.Present
}

func inDomain(s model.MetricSample) bool {
	if s.SlotLag.Present && s.SlotLag.Value < 0 {
		return false
	}
	if s.VoteSuccessRate.Present && (s.VoteSuccessRate.Value < 0 || s.VoteSuccessRate.Value > 1) {
		return false
	}
	if s.CPUUsage.Present && (s.CPUUsage.Value < 0 || s.CPUUsage.Value > 1) {
		return false
	}
	if s.RAMUsageGB.Present && s.RAMUsageGB.Value < 0 {
		return false
	}
	if s.DiskUsagePct.Present && (s.DiskUsagePct.Value < 0 || s.DiskUsagePct.Value > 100) {
		return false
	}
	if s.RPCQPS.Present && s.RPCQPS.Value < 0 {
		return false
	}
	if s.RPCErrorRate.Present && (s.RPCErrorRate.Value < 0 || s.RPCErrorRate.Value > 1) {
		return false
	}
	return true
}

// cpuHistory tracks the last K cpu_usage readings per validator for the
// sustained-HighCpu rule; owned by the Evaluator, one per validator.
type cpuHistory struct {
	window []bool // true = sample exceeded CpuMax
}

func (h *cpuHistory) push(exceeded bool, keep int) {
	h.window = append(h.window, exceeded)
	if len(h.window) > keep {
		h.window = h.window[len(h.window)-keep:]
	}
}

func (h *cpuHistory) sustained(keep int) bool {
	if len(h.window) < keep {
		return false
	}
	for _, v := range h.window {
		if !v {
			return false
		}
	}
	return true
}

// Evaluator classifies samples into Issues with an ordered rule chain:
// the first matching rule wins. It is not goroutine-safe; callers own one
// per validator-processing worker.
type Evaluator struct {
	thresholds Thresholds
	cpuByID    map[model.ValidatorId]*cpuHistory
}

// NewEvaluator builds an Evaluator with the given thresholds.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds, cpuByID: make(map[model.ValidatorId]*cpuHistory)}
}

// Classify returns the Issue for sample as of now, applying the rules in
// order. It updates the per-validator CPU sustained-window state.
func (e *Evaluator) Classify(sample model.MetricSample, now time.Time) model.Issue {
	t := e.thresholds

	if now.Sub(time.Unix(sample.CapturedAt, 0)) > t.StaleAfter {
		return model.IssueStaleMetrics
	}
	if !requiredPresent(sample) || !inDomain(sample) {
		return model.IssueInvalidMetrics
	}
	if sample.SlotLag.Value > t.SlotLagMax {
		return model.IssueHighSlotLag
	}
	if sample.VoteSuccessRate.Value < t.VoteSuccessMin {
		return model.IssueLowVoteSuccess
	}

	hist := e.cpuHistory(sample.ValidatorID)
	exceeded := sample.CPUUsage.Value > t.CpuMax
	hist.push(exceeded, t.CpuSustainedCount)
	if hist.sustained(t.CpuSustainedCount) {
		return model.IssueHighCpu
	}

	if sample.DiskUsagePct.Value > t.DiskPctMax {
		return model.IssueHighDisk
	}
	if sample.RPCErrorRate.Value > t.RpcErrorRateMax && sample.RPCQPS.Value < t.RpcQpsFloor {
		return model.IssueRpcUnavailable
	}
	return model.IssueHealthy
}

func (e *Evaluator) cpuHistory(id model.ValidatorId) *cpuHistory {
	h, ok := e.cpuByID[id]
	if !ok {
		h = &cpuHistory{}
		e.cpuByID[id] = h
	}
	return h
}
