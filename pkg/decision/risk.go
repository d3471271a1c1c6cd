package decision

import "github.com/cyw0ng95/sentinel/pkg/model"

type riskTerm struct {
	weight float64
	value  func(model.MetricSample) (float64, bool)
}

var riskTerms = []riskTerm{
	{weight: 0.35, value: func(s model.MetricSample) (float64, bool) {
		if !s.SlotLag.Present {
			return 0, false
		}
		v := s.SlotLag.Value / 300
		if v > 1 {
			v = 1
		}
		return v, true
	}},
	{weight: 0.25, value: func(s model.MetricSample) (float64, bool) {
		if !s.VoteSuccessRate.Present {
			return 0, false
		}
		return 1 - s.VoteSuccessRate.Value, true
	}},
	{weight: 0.15, value: func(s model.MetricSample) (float64, bool) {
		if !s.CPUUsage.Present {
			return 0, false
		}
		return s.CPUUsage.Value, true
	}},
	{weight: 0.15, value: func(s model.MetricSample) (float64, bool) {
		if !s.DiskUsagePct.Present {
			return 0, false
		}
		return s.DiskUsagePct.Value / 100, true
	}},
	{weight: 0.10, value: func(s model.MetricSample) (float64, bool) {
		if !s.RPCErrorRate.Present {
			return 0, false
		}
		return s.RPCErrorRate.Value, true
	}},
}

// Score computes the weighted risk score in [0,1]. A missing feature
// contributes nothing and its weight is removed from the normalizer, so
// partial samples don't bias the score toward zero.
func Score(s model.MetricSample) model.RiskScore {
	var sum, normalizer float64
	for _, term := range riskTerms {
		v, present := term.value(s)
		if !present {
			continue
		}
		sum += term.weight * v
		normalizer += term.weight
	}
	if normalizer == 0 {
		return 0
	}
	return model.RiskScore(clamp(sum/normalizer, 0, 1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
