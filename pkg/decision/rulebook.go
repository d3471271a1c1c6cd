package decision

import "github.com/cyw0ng95/sentinel/pkg/model"

// ActionSpec is a rulebook or LLM-authored action before validator-id and
// action_id are attached.
type ActionSpec struct {
	Kind   model.ActionKind
	Params map[string]string
}

// Rulebook is the static Issue -> []ActionSpec table used when the LLM path
// is disabled or falls back.
var Rulebook = map[model.Issue][]ActionSpec{
	model.IssueHighSlotLag:    {{Kind: model.ActionRestartValidator}},
	model.IssueLowVoteSuccess: {{Kind: model.ActionRestartValidator}},
	model.IssueHighCpu:        {{Kind: model.ActionKillProcess, Params: map[string]string{"target": "heaviest"}}},
	model.IssueHighDisk:       {{Kind: model.ActionFlushLedger}},
	model.IssueRpcUnavailable: {{Kind: model.ActionRestartValidator}},
}

// RulebookActions returns the actions the static table prescribes for
// issue, or nil if the issue needs no remediation (Healthy and the two
// metrics-quality issues: a stale or invalid sample isn't evidence that a
// disruptive action would help).
func RulebookActions(issue model.Issue) []ActionSpec {
	return Rulebook[issue]
}
