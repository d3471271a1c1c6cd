// Package config loads process configuration exclusively from the
// environment. There is no file-based configuration: every knob is
// injected at deploy time, not read from disk.
package config

import (
	"os"
	"strconv"
	"time"
)

// Broker holds the broker process's tunables.
type Broker struct {
	ListenAddr         string
	OutboundQueueSize  int
	SubscriberQueueCap int
	PendingSweepPeriod time.Duration
	ShutdownGrace      time.Duration
	AuthRateLimit      int
	AuthRateWindow     time.Duration
}

// LoadBroker reads broker configuration from the environment.
func LoadBroker() Broker {
	return Broker{
		ListenAddr:         getenv("EXECUTOR_LISTEN_ADDR", ":7070"),
		OutboundQueueSize:  getenvInt("BROKER_OUTBOUND_QUEUE_SIZE", 64),
		SubscriberQueueCap: getenvInt("BROKER_SUBSCRIBER_QUEUE_CAP", 256),
		PendingSweepPeriod: getenvDuration("BROKER_SWEEP_PERIOD", time.Second),
		ShutdownGrace:      getenvDuration("BROKER_SHUTDOWN_GRACE", 2*time.Second),
		AuthRateLimit:      getenvInt("BROKER_AUTH_RATE_LIMIT", 5),
		AuthRateWindow:     getenvDuration("BROKER_AUTH_RATE_WINDOW", time.Minute),
	}
}

// Agent holds the validator-side agent's tunables.
type Agent struct {
	ValidatorID     string
	AuthToken       string
	BrokerAddr      string
	MetricsURL      string
	ScrapeInterval  time.Duration
	ScrapeTimeout   time.Duration
	ActionTimeout   time.Duration
	ReconnectBase   time.Duration
	ReconnectCap    time.Duration
}

// LoadAgent reads validator-agent configuration from the environment.
func LoadAgent() Agent {
	return Agent{
		ValidatorID:    os.Getenv("VALIDATOR_ID"),
		AuthToken:      os.Getenv("VALIDATOR_AUTH_TOKEN"),
		BrokerAddr:     getenv("EXECUTOR_SERVER_ADDR", "localhost:7070"),
		MetricsURL:     os.Getenv("VALIDATOR_METRICS_URL"),
		ScrapeInterval: getenvDuration("AGENT_SCRAPE_INTERVAL", time.Second),
		ScrapeTimeout:  getenvDuration("AGENT_SCRAPE_TIMEOUT", 2*time.Second),
		ActionTimeout:  getenvDuration("AGENT_ACTION_TIMEOUT", 30*time.Second),
		ReconnectBase:  getenvDuration("AGENT_RECONNECT_BASE", time.Second),
		ReconnectCap:   getenvDuration("AGENT_RECONNECT_CAP", 30*time.Second),
	}
}

// Decision holds the decision engine's tunables.
type Decision struct {
	BrokerAddr      string
	LLMAPIKey       string
	LLMEnabled      bool
	LLMEndpoint     string
	LLMTimeout      time.Duration
	StaleThreshold  time.Duration
	SustainedCpuK   int
	CooldownPeriod  time.Duration
	RollingCap      int
	RollingWindow   time.Duration
	MaxSubmitWait   time.Duration
}

// LoadDecision reads decision-engine configuration from the environment.
func LoadDecision() Decision {
	return Decision{
		BrokerAddr:     getenv("EXECUTOR_SERVER_ADDR", "localhost:7070"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMEnabled:     os.Getenv("LLM_API_KEY") != "",
		LLMEndpoint:    getenv("LLM_ENDPOINT", "https://api.openai.com/v1/chat/completions"),
		LLMTimeout:     getenvDuration("LLM_TIMEOUT", 10*time.Second),
		StaleThreshold: getenvDuration("DECISION_STALE_THRESHOLD", 60*time.Second),
		SustainedCpuK:  getenvInt("DECISION_SUSTAINED_CPU_K", 3),
		CooldownPeriod: getenvDuration("DECISION_COOLDOWN", 120*time.Second),
		RollingCap:     getenvInt("DECISION_ROLLING_CAP", 5),
		RollingWindow:  getenvDuration("DECISION_ROLLING_WINDOW", 10*time.Minute),
		MaxSubmitWait:  getenvDuration("DECISION_MAX_SUBMIT_WAIT", 5*time.Second),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// LoadConfig is a deliberate no-op: runtime file-based configuration
// loading is disabled in this repository. Use the environment-backed
// Load* functions instead.
func LoadConfig(_ string) error { return nil }

// SaveConfig is a deliberate no-op for the same reason as LoadConfig.
func SaveConfig(_ string) error { return nil }
