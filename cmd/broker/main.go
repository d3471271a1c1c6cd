// Command broker runs the control-plane process. Action submission and
// metrics subscription are in-process APIs, so this binary is the
// control-plane monolith: it terminates validator sessions, fans metrics
// out to subscribers, and hosts the decision engine and the metrics
// mirror as in-process subscribers wired directly to the broker, rather
// than as separate networked services.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cyw0ng95/sentinel/internal/auth"
	"github.com/cyw0ng95/sentinel/internal/config"
	"github.com/cyw0ng95/sentinel/internal/logging"
	"github.com/cyw0ng95/sentinel/internal/netopt"
	"github.com/cyw0ng95/sentinel/internal/obshttp"
	"github.com/cyw0ng95/sentinel/pkg/broker"
	"github.com/cyw0ng95/sentinel/pkg/decision"
	"github.com/cyw0ng95/sentinel/pkg/decision/llm"
	"github.com/cyw0ng95/sentinel/pkg/mirror"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

func main() {
	logger := logging.Default().WithPrefix("[BROKER] ")

	cfg := config.LoadBroker()
	validators, err := loadValidatorConfigs(logger)
	if err != nil {
		logger.Error("configuration error: %v", err)
		os.Exit(1)
	}

	b := broker.New(validators, broker.Config{
		OutboundQueueSize:  cfg.OutboundQueueSize,
		SubscriberQueueCap: cfg.SubscriberQueueCap,
		SweepPeriod:        cfg.PendingSweepPeriod,
		ShutdownGrace:      cfg.ShutdownGrace,
		AuthRateLimit:      cfg.AuthRateLimit,
		AuthRateWindow:     cfg.AuthRateWindow,
	}, logger)
	b.Start()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("bind failed addr=%s err=%v", cfg.ListenAddr, err)
		os.Exit(2)
	}
	logger.Info("listening for validator sessions on %s", cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	go acceptLoop(ctx, ln, b, logger)

	stopDecision := startDecisionEngine(ctx, b, logger)
	stopMirror := startMirror(ctx, b, logger)

	obsAddr := envOr("BROKER_OBS_LISTEN_ADDR", ":7071")
	go func() {
		if err := obshttp.NewRouter(b).Run(obsAddr); err != nil {
			logger.Warn("observability server stopped: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	cancel()
	ln.Close()
	if stopDecision != nil {
		stopDecision()
	}
	if stopMirror != nil {
		stopMirror()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	b.Shutdown(shutdownCtx)
}

// startDecisionEngine subscribes a decision.Engine to b's metric stream and
// feeds it samples until ctx is done. The LLM path is enabled only when
// LLM_API_KEY is set; any LLM failure falls back to the rulebook, so
// disabling it entirely is always safe.
func startDecisionEngine(ctx context.Context, b *broker.Broker, logger *logging.Logger) func() {
	dcfg := config.LoadDecision()
	engLogger := logger.WithPrefix("[DECIDER] ")

	var synth decision.Synthesizer
	if dcfg.LLMEnabled {
		client, err := llm.New(llm.Config{Endpoint: dcfg.LLMEndpoint, APIKey: dcfg.LLMAPIKey, Timeout: dcfg.LLMTimeout})
		if err != nil {
			engLogger.Warn("llm client init failed, running rulebook-only: %v", err)
		} else {
			synth = client
		}
	}

	thresholds := decision.DefaultThresholds()
	thresholds.StaleAfter = dcfg.StaleThreshold
	thresholds.CpuSustainedCount = dcfg.SustainedCpuK

	debounce := decision.DefaultDebounceConfig()
	debounce.Cooldown = dcfg.CooldownPeriod
	debounce.RollingCap = dcfg.RollingCap
	debounce.RollingWindow = dcfg.RollingWindow

	engine := decision.New(b, decision.Config{
		Thresholds:    thresholds,
		Debounce:      debounce,
		MaxSubmitWait: dcfg.MaxSubmitWait,
	}, synth, engLogger)

	sub := b.SubscribeMetrics()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case sample := <-sub.Chan():
				engine.Process(ctx, sample)
			}
		}
	}()
	return func() {
		b.UnsubscribeMetrics(sub)
		<-done
	}
}

// startMirror opens the bbolt-backed metrics store named by MIRROR_DB_PATH
// and subscribes a mirror.Mirror to b, or returns nil if disabled.
func startMirror(ctx context.Context, b *broker.Broker, logger *logging.Logger) func() {
	path := envOr("MIRROR_DB_PATH", "")
	if path == "" {
		logger.Warn("MIRROR_DB_PATH unset; metrics mirror disabled")
		return nil
	}
	ttl := getenvDuration("MIRROR_TTL", 5*time.Minute)
	store, err := mirror.OpenStore(path, ttl)
	if err != nil {
		logger.Error("mirror store open failed path=%s err=%v", path, err)
		return nil
	}
	m := mirror.New(b, store, logger.WithPrefix("[MIRROR] "))
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(stop)
	}()
	go func() {
		<-ctx.Done()
		close(stop)
	}()
	return func() {
		<-done
		store.Close()
	}
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

func acceptLoop(ctx context.Context, ln net.Listener, b *broker.Broker, logger *logging.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Warn("accept failed: %v", err)
				return
			}
		}
		if err := netopt.TuneValidatorSession(conn); err != nil {
			logger.Warn("socket tuning failed peer=%s err=%v", conn.RemoteAddr(), err)
		}
		go b.ServeConnection(ctx, conn)
	}
}

// loadValidatorConfigs builds the process-wide immutable validator
// registry from BROKER_VALIDATORS, a comma-separated id:secret list,
// keeping the registry entirely environment-driven like the rest of the
// control plane's configuration.
func loadValidatorConfigs(logger *logging.Logger) ([]model.ValidatorConfig, error) {
	raw := os.Getenv("BROKER_VALIDATORS")
	if raw == "" {
		logger.Warn("BROKER_VALIDATORS is empty; no validator will be able to authenticate")
		return nil, nil
	}
	var configs []model.ValidatorConfig
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		hash, err := auth.HashToken(parts[1])
		if err != nil {
			return nil, err
		}
		configs = append(configs, model.ValidatorConfig{ID: model.ValidatorId(parts[0]), AuthTokenHash: hash})
	}
	return configs, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
