package decision

import (
	"sync"
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

// DebounceConfig tunes the per-issue cooldown and the per-validator
// action-storm cap.
type DebounceConfig struct {
	Cooldown      time.Duration // default 120s
	RollingCap    int           // default 5
	RollingWindow time.Duration // default 10m
}

// DefaultDebounceConfig returns the stock cooldown and storm-cap values.
func DefaultDebounceConfig() DebounceConfig {
	return DebounceConfig{Cooldown: 120 * time.Second, RollingCap: 5, RollingWindow: 10 * time.Minute}
}

type validatorIssue struct {
	id    model.ValidatorId
	issue model.Issue
}

// debouncer tracks last_action_at per (validator_id, issue) and a rolling
// action count per validator, guarded by a single lock.
type debouncer struct {
	mu         sync.Mutex
	cfg        DebounceConfig
	lastAction map[validatorIssue]time.Time
	rollingLog map[model.ValidatorId][]time.Time
}

func newDebouncer(cfg DebounceConfig) *debouncer {
	return &debouncer{
		cfg:        cfg,
		lastAction: make(map[validatorIssue]time.Time),
		rollingLog: make(map[model.ValidatorId][]time.Time),
	}
}

// allow reports whether an action may be emitted now for (id, issue): the
// cooldown since the last action for that pair has elapsed (or there was
// none), and the rolling cap hasn't been hit.
func (d *debouncer) allow(id model.ValidatorId, issue model.Issue, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := validatorIssue{id, issue}
	if last, ok := d.lastAction[key]; ok && now.Sub(last) < d.cfg.Cooldown {
		return false
	}

	log := d.pruneLocked(id, now)
	return len(log) < d.cfg.RollingCap
}

// recordEmission must be called exactly once for every action actually
// submitted, so the cooldown and rolling cap reflect reality.
func (d *debouncer) recordEmission(id model.ValidatorId, issue model.Issue, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastAction[validatorIssue{id, issue}] = now
	d.rollingLog[id] = append(d.pruneLocked(id, now), now)
}

func (d *debouncer) pruneLocked(id model.ValidatorId, now time.Time) []time.Time {
	log := d.rollingLog[id]
	cutoff := now.Add(-d.cfg.RollingWindow)
	kept := log[:0]
	for _, t := range log {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.rollingLog[id] = kept
	return kept
}
