package scrape

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cyw0ng95/sentinel/internal/errs"
	"github.com/cyw0ng95/sentinel/internal/httpx"
	"github.com/cyw0ng95/sentinel/pkg/broker/reliability"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

// Client fetches and parses a validator's local text metrics endpoint. A
// circuit breaker bounds retries against a persistently unreachable scrape
// target, the same pattern the LLM client uses against its endpoint.
type Client struct {
	http    *resty.Client
	url     string
	circuit *reliability.CircuitBreaker
}

// NewClient builds a scrape Client hitting url with the given per-request
// timeout.
func NewClient(url string, timeout time.Duration) (*Client, error) {
	http, err := httpx.NewClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("scrape: build http client: %w", err)
	}
	return &Client{
		http:    http,
		url:     url,
		circuit: reliability.NewCircuitBreaker(reliability.CircuitBreakerConfig{Timeout: 30 * time.Second}),
	}, nil
}

// Fetch pulls and parses the metrics endpoint, returning a sample stamped
// with validatorID and the current time. On any fetch or parse failure it
// returns errs.External and the caller should fall back to StaleSample.
func (c *Client) Fetch(validatorID model.ValidatorId) (model.MetricSample, error) {
	now := time.Now()
	var body string
	err := c.circuit.Call(func() error {
		resp, err := c.http.R().Get(c.url)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("scrape endpoint returned %d", resp.StatusCode())
		}
		body = resp.String()
		return nil
	})
	if err != nil {
		return model.MetricSample{}, errs.Wrap(errs.External, "scrape request failed", err)
	}
	metrics, err := ParseText(body)
	if err != nil {
		return model.MetricSample{}, errs.Wrap(errs.External, "scrape parse failed", err)
	}
	return BuildSample(metrics, validatorID, now), nil
}
