package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

func TestScoreFullSampleWorstCase(t *testing.T) {
	s := model.MetricSample{
		ValidatorID:     "v1",
		SlotLag:         model.Float(300),
		VoteSuccessRate: model.Float(0.5),
		CPUUsage:        model.Float(1.0),
		DiskUsagePct:    model.Float(100),
		RPCErrorRate:    model.Float(1.0),
	}
	// 0.35*1 + 0.25*0.5 + 0.15*1 + 0.15*1 + 0.10*1, normalizer 1.
	require.InDelta(t, 0.875, float64(Score(s)), 1e-9)
}

func TestScoreSlotLagIsCappedAtOne(t *testing.T) {
	lagged := model.MetricSample{SlotLag: model.Float(10_000)}
	atCap := model.MetricSample{SlotLag: model.Float(300)}
	assert.Equal(t, Score(atCap), Score(lagged))
}

func TestScoreMissingFeaturesRenormalize(t *testing.T) {
	// Only slot_lag present: its normalized value is the whole score.
	s := model.MetricSample{SlotLag: model.Float(150)}
	require.InDelta(t, 0.5, float64(Score(s)), 1e-9)
}

func TestScoreEmptySampleIsZero(t *testing.T) {
	assert.Zero(t, Score(model.MetricSample{ValidatorID: "v1"}))
}

func TestScoreHealthySampleIsLow(t *testing.T) {
	s := model.MetricSample{
		SlotLag:         model.Float(10),
		VoteSuccessRate: model.Float(0.99),
		CPUUsage:        model.Float(0.2),
		DiskUsagePct:    model.Float(40),
		RPCErrorRate:    model.Float(0.0),
	}
	assert.Less(t, float64(Score(s)), 0.2)
}
