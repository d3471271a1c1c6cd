package model

// OptionalFloat is a present/absent wrapper for a scraped metric field.
// A scrape that doesn't expose a metric leaves the field absent rather
// than defaulting it to zero, so downstream rules can tell "0" from
// "not reported".
type OptionalFloat struct {
	Value   float64
	Present bool
}

// Float returns a present OptionalFloat.
func Float(v float64) OptionalFloat { return OptionalFloat{Value: v, Present: true} }

// MetricSample is a single point-in-time health reading for one validator.
// Samples are value objects: once produced they are never mutated.
type MetricSample struct {
	ValidatorID     ValidatorId
	SlotLag         OptionalFloat
	VoteSuccessRate OptionalFloat
	CPUUsage        OptionalFloat
	RAMUsageGB      OptionalFloat
	DiskUsagePct    OptionalFloat
	RPCQPS          OptionalFloat
	RPCErrorRate    OptionalFloat
	CapturedAt      int64 // unix seconds
}

// Issue classifies a single MetricSample against the rule library.
type Issue string

const (
	IssueHealthy        Issue = "Healthy"
	IssueHighSlotLag    Issue = "HighSlotLag"
	IssueLowVoteSuccess Issue = "LowVoteSuccess"
	IssueHighCpu        Issue = "HighCpu"
	IssueHighDisk       Issue = "HighDisk"
	IssueRpcUnavailable Issue = "RpcUnavailable"
	IssueStaleMetrics   Issue = "StaleMetrics"
	IssueInvalidMetrics Issue = "InvalidMetrics"
)

// RiskScore is a normalized severity in [0,1].
type RiskScore float64
