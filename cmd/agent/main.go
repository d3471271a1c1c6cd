// Command agent is the validator-side process: it scrapes local metrics,
// streams them to the broker, and executes actions the broker dispatches
// back.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyw0ng95/sentinel/internal/config"
	"github.com/cyw0ng95/sentinel/internal/logging"
	"github.com/cyw0ng95/sentinel/pkg/agent"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

func main() {
	logger := logging.Default().WithPrefix("[AGENT] ")
	cfg := config.LoadAgent()

	if cfg.ValidatorID == "" || cfg.AuthToken == "" || cfg.MetricsURL == "" {
		logger.Error("VALIDATOR_ID, VALIDATOR_AUTH_TOKEN and VALIDATOR_METRICS_URL are required")
		os.Exit(1)
	}

	a, err := agent.New(agent.Config{
		ValidatorID:   model.ValidatorId(cfg.ValidatorID),
		AuthToken:     cfg.AuthToken,
		BrokerAddr:    cfg.BrokerAddr,
		MetricsURL:    cfg.MetricsURL,
		ScrapeTick:    cfg.ScrapeInterval,
		ScrapeTimeout: cfg.ScrapeTimeout,
		ReconnectBase: cfg.ReconnectBase,
		ReconnectCap:  cfg.ReconnectCap,
	}, logger)
	if err != nil {
		logger.Error("agent init failed: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	a.Run(ctx)
}
