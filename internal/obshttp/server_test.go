package obshttp

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyw0ng95/sentinel/pkg/broker"
)

func TestHealthzReturnsOK(t *testing.T) {
	b := broker.New(nil, broker.Config{SweepPeriod: time.Hour}, nil)
	b.Start()
	defer b.Shutdown(context.Background())

	router := NewRouter(b)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestSnapshotReturnsBrokerState(t *testing.T) {
	b := broker.New(nil, broker.Config{SweepPeriod: time.Hour}, nil)
	b.Start()
	defer b.Shutdown(context.Background())

	router := NewRouter(b)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/snapshot", nil)
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected a non-empty snapshot body")
	}
}
