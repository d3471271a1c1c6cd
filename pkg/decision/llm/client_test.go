package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

func sampleFor(issue model.Issue) model.MetricSample {
	return model.MetricSample{
		ValidatorID:     "v1",
		SlotLag:         model.Float(500),
		VoteSuccessRate: model.Float(0.5),
		CPUUsage:        model.Float(0.3),
		DiskUsagePct:    model.Float(50),
		RPCErrorRate:    model.Float(0.1),
		CapturedAt:      time.Now().Unix(),
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{Endpoint: url, APIKey: "test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSynthesizeValidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"actions\":[{\"kind\":\"RestartValidator\",\"params\":{}}]}"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	specs, err := c.Synthesize(context.Background(), sampleFor(model.IssueHighSlotLag), model.IssueHighSlotLag)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(specs) != 1 || specs[0].Kind != model.ActionRestartValidator {
		t.Fatalf("specs = %+v", specs)
	}
}

func TestSynthesizeRejectsUnknownActionKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"actions\":[{\"kind\":\"NukeDatacenter\"}]}"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Synthesize(context.Background(), sampleFor(model.IssueHighDisk), model.IssueHighDisk)
	if err == nil {
		t.Fatal("expected error for unknown action kind")
	}
}

func TestSynthesizeRejectsMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Synthesize(context.Background(), sampleFor(model.IssueHighDisk), model.IssueHighDisk)
	if err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestSynthesizeRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Synthesize(context.Background(), sampleFor(model.IssueHighDisk), model.IssueHighDisk)
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}

func TestSynthesizeTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := New(Config{Endpoint: srv.URL, APIKey: "test", Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Synthesize(context.Background(), sampleFor(model.IssueHighDisk), model.IssueHighDisk)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
