// Command mockvalidatorctl is a test fixture standing in for a real
// validator node: it serves the text metrics endpoint pkg/scrape parses
// and an admin endpoint AdminHttp actions can target, with knobs to
// simulate a degraded validator for exercising the Decision Engine without
// a live chain.
package main

import (
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
)

// state is the fixture's mutable simulated metric set, adjusted over HTTP
// by an operator or a test harness.
type state struct {
	mu              sync.Mutex
	slotLag         float64
	voteSuccessRate float64
	cpuUsage        float64
	ramUsageGB      float64
	diskUsagePct    float64
	rpcQPS          float64
	rpcErrorRate    float64
	restartCount    int
}

func newState() *state {
	return &state{
		slotLag:         0,
		voteSuccessRate: 0.99,
		cpuUsage:        0.2,
		ramUsageGB:      4.0,
		diskUsagePct:    40,
		rpcQPS:          50,
		rpcErrorRate:    0.01,
	}
}

func (s *state) renderText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf(
		"# mockvalidatorctl metrics\n"+
			"slot_lag %g\n"+
			"vote_success_rate %g\n"+
			"cpu_usage %g\n"+
			"ram_usage_gb %g\n"+
			"disk_usage_pct %g\n"+
			"rpc_qps %g\n"+
			"rpc_error_rate %g\n",
		s.slotLag, s.voteSuccessRate, s.cpuUsage, s.ramUsageGB, s.diskUsagePct, s.rpcQPS, s.rpcErrorRate,
	)
}

func main() {
	addr := envOr("MOCKVALIDATOR_LISTEN_ADDR", ":9105")

	st := newState()

	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = os.Stderr
	router := gin.New()
	router.Use(gin.RecoveryWithWriter(os.Stderr))

	router.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, st.renderText())
	})

	// /simulate lets a test harness push the fixture into a known
	// degraded state by name, matching the issue vocabulary in
	// pkg/decision/rules.go.
	router.POST("/simulate/:profile", func(c *gin.Context) {
		st.mu.Lock()
		switch c.Param("profile") {
		case "healthy":
			st.slotLag, st.voteSuccessRate, st.cpuUsage = 0, 0.99, 0.2
			st.diskUsagePct, st.rpcQPS, st.rpcErrorRate = 40, 50, 0.01
		case "high_slot_lag":
			st.slotLag = 500
		case "low_vote_success":
			st.voteSuccessRate = 0.5
		case "high_cpu":
			st.cpuUsage = 0.99
		case "high_disk":
			st.diskUsagePct = 95
		case "rpc_unavailable":
			st.rpcQPS, st.rpcErrorRate = 0.1, 0.9
		default:
			st.mu.Unlock()
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown profile"})
			return
		}
		st.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"status": "applied"})
	})

	// /admin is the target an AdminHttp action's "url" param points at; it
	// records the call so a test can assert the broker dispatched it.
	router.POST("/admin", func(c *gin.Context) {
		st.mu.Lock()
		st.restartCount++
		count := st.restartCount
		st.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"acknowledged": true, "call_count": count})
	})

	fmt.Fprintf(os.Stderr, "mockvalidatorctl listening on %s\n", addr)
	if err := router.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "mockvalidatorctl: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
