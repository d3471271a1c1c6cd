// Package httpx builds the shared resty HTTP client used by every outbound
// HTTP caller in this repository (the validator-side scraper and the
// decision engine's LLM client).
package httpx

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/go-resty/resty/v2"
)

// NewClient returns a resty client pooled for repeated calls to a small
// number of hosts, with an HTTP/2-aware transport and the given overall
// request timeout.
func NewClient(timeout time.Duration) (*resty.Client, error) {
	client := resty.New().SetTimeout(timeout)

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		MaxConnsPerHost:     50,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("httpx: configure HTTP/2: %w", err)
	}
	client.SetTransport(transport)

	return client, nil
}
