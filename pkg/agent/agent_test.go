package agent

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyw0ng95/sentinel/internal/auth"
	"github.com/cyw0ng95/sentinel/pkg/broker"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

// TestAgentEndToEndHandshakeAndSample spins up a real broker listener and
// a real agent, and checks a scraped sample reaches the broker's
// subscribers over the actual wire protocol.
func TestAgentEndToEndHandshakeAndSample(t *testing.T) {
	metricsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("slot_lag 10\nvote_success_rate 0.99\ncpu_usage 0.1\n"))
	}))
	defer metricsSrv.Close()

	hash, err := auth.HashToken("s1")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	b := broker.New([]model.ValidatorConfig{{ID: "v1", AuthTokenHash: hash}}, broker.Config{SweepPeriod: time.Hour}, nil)
	b.Start()
	defer b.Shutdown(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go b.ServeConnection(ctx, conn)
		}
	}()

	sub := b.SubscribeMetrics()
	defer b.UnsubscribeMetrics(sub)

	a, err := New(Config{
		ValidatorID:   "v1",
		AuthToken:     "s1",
		BrokerAddr:    ln.Addr().String(),
		MetricsURL:    metricsSrv.URL,
		ScrapeTick:    20 * time.Millisecond,
		ScrapeTimeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	agentCtx, agentCancel := context.WithCancel(context.Background())
	defer agentCancel()
	go a.Run(agentCtx)

	select {
	case sample := <-sub.Chan():
		if sample.ValidatorID != "v1" {
			t.Fatalf("validator_id = %q, want v1", sample.ValidatorID)
		}
		if !sample.SlotLag.Present || sample.SlotLag.Value != 10 {
			t.Fatalf("slot_lag = %+v, want present 10", sample.SlotLag)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("did not receive a sample via the broker within timeout")
	}
}

// TestAgentExecutesDispatchedAction verifies a Submit'd action reaches the
// agent, executes, and its result round-trips back to the submitter.
func TestAgentExecutesDispatchedAction(t *testing.T) {
	metricsSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("slot_lag 10\n"))
	}))
	defer metricsSrv.Close()

	hash, err := auth.HashToken("s1")
	if err != nil {
		t.Fatalf("hash token: %v", err)
	}
	b := broker.New([]model.ValidatorConfig{{ID: "v1", AuthTokenHash: hash}}, broker.Config{SweepPeriod: time.Hour}, nil)
	b.Start()
	defer b.Shutdown(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go b.ServeConnection(ctx, conn)
		}
	}()

	a, err := New(Config{
		ValidatorID:   "v1",
		AuthToken:     "s1",
		BrokerAddr:    ln.Addr().String(),
		MetricsURL:    metricsSrv.URL,
		ScrapeTick:    time.Hour,
		ScrapeTimeout: time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	agentCtx, agentCancel := context.WithCancel(context.Background())
	defer agentCancel()
	go a.Run(agentCtx)

	// Give the handshake time to complete before submitting.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(b.SnapshotState().ConnectedIDs) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	handle, err := b.Submit(model.Action{
		ValidatorID: "v1",
		Kind:        model.ActionRunCommand,
		DeadlineMs:  5000,
		Params:      map[string]string{"command": "echo from-agent"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer waitCancel()
	result, err := handle.Wait(waitCtx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if result.Status != model.StatusSuccess {
		t.Fatalf("status = %v, want Success: %+v", result.Status, result)
	}
}
