package wire

import (
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

func optPtr(f model.OptionalFloat) *float64 {
	if !f.Present {
		return nil
	}
	v := f.Value
	return &v
}

func optFrom(p *float64) model.OptionalFloat {
	if p == nil {
		return model.OptionalFloat{}
	}
	return model.Float(*p)
}

// SampleFromModel converts a model.MetricSample to its wire form.
func SampleFromModel(s model.MetricSample) Sample {
	return Sample{
		ValidatorID:     string(s.ValidatorID),
		SlotLag:         optPtr(s.SlotLag),
		VoteSuccessRate: optPtr(s.VoteSuccessRate),
		CPUUsage:        optPtr(s.CPUUsage),
		RAMUsageGB:      optPtr(s.RAMUsageGB),
		DiskUsagePct:    optPtr(s.DiskUsagePct),
		RPCQPS:          optPtr(s.RPCQPS),
		RPCErrorRate:    optPtr(s.RPCErrorRate),
		CapturedAt:      s.CapturedAt,
	}
}

// SampleToModel converts a wire Sample back to model.MetricSample.
func SampleToModel(s Sample) model.MetricSample {
	return model.MetricSample{
		ValidatorID:     model.ValidatorId(s.ValidatorID),
		SlotLag:         optFrom(s.SlotLag),
		VoteSuccessRate: optFrom(s.VoteSuccessRate),
		CPUUsage:        optFrom(s.CPUUsage),
		RAMUsageGB:      optFrom(s.RAMUsageGB),
		DiskUsagePct:    optFrom(s.DiskUsagePct),
		RPCQPS:          optFrom(s.RPCQPS),
		RPCErrorRate:    optFrom(s.RPCErrorRate),
		CapturedAt:      s.CapturedAt,
	}
}

// ActionFromModel converts a model.Action to its wire form.
func ActionFromModel(a model.Action) ActionMsg {
	return ActionMsg{
		ActionID:    a.ActionID,
		ValidatorID: string(a.ValidatorID),
		Kind:        string(a.Kind),
		Params:      a.Params,
		CreatedAt:   a.CreatedAt.Unix(),
		DeadlineMs:  a.DeadlineMs,
	}
}

// ActionToModel converts a wire ActionMsg back to model.Action.
func ActionToModel(a ActionMsg) model.Action {
	return model.Action{
		ActionID:    a.ActionID,
		ValidatorID: model.ValidatorId(a.ValidatorID),
		Kind:        model.ActionKind(a.Kind),
		Params:      a.Params,
		CreatedAt:   time.Unix(a.CreatedAt, 0),
		DeadlineMs:  a.DeadlineMs,
	}
}

// ResultFromModel converts a model.ActionResult to its wire form.
func ResultFromModel(r model.ActionResult) Result {
	return Result{
		ActionID:    r.ActionID,
		ValidatorID: string(r.ValidatorID),
		Status:      string(r.Status),
		ExitCode:    r.ExitCode,
		StdoutTail:  r.StdoutTail,
		StderrTail:  r.StderrTail,
		DurationMs:  r.DurationMs,
		CompletedAt: r.CompletedAt.Unix(),
		Reason:      r.Reason,
	}
}

// ResultToModel converts a wire Result back to model.ActionResult.
func ResultToModel(r Result) model.ActionResult {
	return model.ActionResult{
		ActionID:    r.ActionID,
		ValidatorID: model.ValidatorId(r.ValidatorID),
		Status:      model.ResultStatus(r.Status),
		ExitCode:    r.ExitCode,
		StdoutTail:  r.StdoutTail,
		StderrTail:  r.StderrTail,
		DurationMs:  r.DurationMs,
		CompletedAt: time.Unix(r.CompletedAt, 0),
		Reason:      r.Reason,
	}
}
