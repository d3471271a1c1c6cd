// Package llm implements the optional LLM-mediated action synthesizer:
// it builds a prompt from a sample and its issue, calls a chat-completion
// endpoint, and strictly validates the response against the ActionKind
// schema before handing actions back to the rule engine. Any failure
// surfaces as a plain error so the caller falls back to the rulebook —
// the LLM is advisory, never authoritative.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cyw0ng95/sentinel/internal/httpx"
	"github.com/cyw0ng95/sentinel/pkg/broker/reliability"
	"github.com/cyw0ng95/sentinel/pkg/decision"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

// Config configures the chat-completion client.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration // default 10s
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Client is a decision.Synthesizer backed by an external chat-completion
// endpoint, protected by a circuit breaker so a persistently failing LLM
// degrades to constant-time rulebook fallback instead of retry storms.
type Client struct {
	cfg     Config
	http    *resty.Client
	circuit *reliability.Manager
}

// New builds a Client. It returns an error only if the underlying HTTP
// transport cannot be constructed (see internal/httpx).
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	c, err := httpx.NewClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("llm: build http client: %w", err)
	}
	return &Client{
		cfg:     cfg,
		http:    c,
		circuit: reliability.NewManager(reliability.CircuitBreakerConfig{Timeout: 30 * time.Second}),
	}, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// actionPlan is the strict JSON schema the LLM's message content must
// satisfy: a flat list of {kind, params}.
type actionPlan struct {
	Actions []planAction `json:"actions"`
}

type planAction struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params"`
}

// Synthesize calls the chat-completion endpoint and validates its response.
// Any failure — timeout, non-2xx, malformed JSON, unknown ActionKind — is
// returned as an error; the caller is expected to fall back to the
// rulebook.
func (c *Client) Synthesize(ctx context.Context, sample model.MetricSample, issue model.Issue) ([]decision.ActionSpec, error) {
	var body []byte
	err := c.circuit.Call(c.cfg.Endpoint, func() error {
		req := chatRequest{
			Model: "validator-sre-planner",
			Messages: []chatMessage{
				{Role: "system", Content: "Respond only with JSON matching {\"actions\":[{\"kind\":string,\"params\":object}]}."},
				{Role: "user", Content: prompt(sample, issue)},
			},
		}
		resp, httpErr := c.http.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+c.cfg.APIKey).
			SetHeader("Content-Type", "application/json").
			SetBody(req).
			Post(c.cfg.Endpoint)
		if httpErr != nil {
			return httpErr
		}
		if resp.IsError() {
			return fmt.Errorf("llm: non-2xx status %d", resp.StatusCode())
		}
		body = resp.Body()
		return nil
	})
	if err != nil {
		return nil, err
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("llm: malformed envelope: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("llm: no choices in response")
	}

	var plan actionPlan
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &plan); err != nil {
		return nil, fmt.Errorf("llm: malformed action plan json: %w", err)
	}
	if len(plan.Actions) == 0 {
		return nil, fmt.Errorf("llm: empty action plan")
	}

	specs := make([]decision.ActionSpec, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		kind := model.ActionKind(a.Kind)
		if !model.ValidActionKinds[kind] {
			return nil, fmt.Errorf("llm: unknown action kind %q", a.Kind)
		}
		specs = append(specs, decision.ActionSpec{Kind: kind, Params: a.Params})
	}
	return specs, nil
}

func prompt(sample model.MetricSample, issue model.Issue) string {
	return fmt.Sprintf(
		"validator=%s issue=%s slot_lag=%.0f vote_success_rate=%.3f cpu_usage=%.3f disk_usage_pct=%.1f rpc_error_rate=%.3f captured_at=%d",
		sample.ValidatorID, issue, sample.SlotLag.Value, sample.VoteSuccessRate.Value, sample.CPUUsage.Value,
		sample.DiskUsagePct.Value, sample.RPCErrorRate.Value, sample.CapturedAt,
	)
}
