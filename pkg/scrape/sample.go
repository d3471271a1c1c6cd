package scrape

import (
	"math"
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

// known metric names the sample builder looks for in a parsed scrape.
const (
	metricSlotLag         = "slot_lag"
	metricVoteSuccessRate = "vote_success_rate"
	metricCPUUsage        = "cpu_usage"
	metricRAMUsageGB      = "ram_usage_gb"
	metricDiskUsagePct    = "disk_usage_pct"
	metricRPCQPS          = "rpc_qps"
	metricRPCErrorRate    = "rpc_error_rate"
)

// BuildSample assembles a model.MetricSample from parsed scrape metrics,
// stamping it with validator identity and the capture time. A metric
// absent from the scrape (or NaN-valued) is reported as not-present
// rather than zero.
func BuildSample(metrics []Metric, validatorID model.ValidatorId, capturedAt time.Time) model.MetricSample {
	byName := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		byName[m.Name] = m.Value
	}

	lookup := func(name string) model.OptionalFloat {
		v, ok := byName[name]
		if !ok || math.IsNaN(v) {
			return model.OptionalFloat{}
		}
		return model.Float(v)
	}

	return model.MetricSample{
		ValidatorID:     validatorID,
		SlotLag:         lookup(metricSlotLag),
		VoteSuccessRate: lookup(metricVoteSuccessRate),
		CPUUsage:        lookup(metricCPUUsage),
		RAMUsageGB:      lookup(metricRAMUsageGB),
		DiskUsagePct:    lookup(metricDiskUsagePct),
		RPCQPS:          lookup(metricRPCQPS),
		RPCErrorRate:    lookup(metricRPCErrorRate),
		CapturedAt:      capturedAt.Unix(),
	}
}

// StaleSample builds a sample with only CapturedAt populated, used when a
// scrape attempt fails entirely so staleness is still visible upstream.
func StaleSample(validatorID model.ValidatorId, capturedAt time.Time) model.MetricSample {
	return model.MetricSample{ValidatorID: validatorID, CapturedAt: capturedAt.Unix()}
}
