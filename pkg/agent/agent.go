// Package agent is the validator-side Scraper + Executor process: a
// single long-lived authenticated session to the Broker that multiplexes
// outbound MetricSamples, inbound Actions, and outbound ActionResults.
package agent

import (
	"context"
	"encoding/json"
	"math/rand"
	"net"
	"time"

	"github.com/cyw0ng95/sentinel/internal/logging"
	"github.com/cyw0ng95/sentinel/internal/netopt"
	"github.com/cyw0ng95/sentinel/internal/wire"
	"github.com/cyw0ng95/sentinel/pkg/model"
)

// Config drives one Agent process.
type Config struct {
	ValidatorID   model.ValidatorId
	AuthToken     string
	BrokerAddr    string
	MetricsURL    string
	ScrapeTick    time.Duration // default 1s
	ScrapeTimeout time.Duration // default 2s
	ReconnectBase time.Duration // default 1s
	ReconnectCap  time.Duration // default 30s
}

func (c *Config) applyDefaults() {
	if c.ScrapeTick <= 0 {
		c.ScrapeTick = time.Second
	}
	if c.ScrapeTimeout <= 0 {
		c.ScrapeTimeout = 2 * time.Second
	}
	if c.ReconnectBase <= 0 {
		c.ReconnectBase = time.Second
	}
	if c.ReconnectCap <= 0 {
		c.ReconnectCap = 30 * time.Second
	}
}

// Agent runs the reconnect loop, owning one Scraper and one Executor for
// the process lifetime.
type Agent struct {
	cfg      Config
	scraper  *Scraper
	executor *Executor
	logger   *logging.Logger
}

// New builds an Agent for cfg.
func New(cfg Config, logger *logging.Logger) (*Agent, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	scraper, err := NewScraper(cfg.ValidatorID, cfg.MetricsURL, cfg.ScrapeTick, cfg.ScrapeTimeout)
	if err != nil {
		return nil, err
	}
	return &Agent{cfg: cfg, scraper: scraper, executor: NewExecutor(logger), logger: logger}, nil
}

// Run drives the reconnect loop with jittered exponential backoff until ctx
// is done.
func (a *Agent) Run(ctx context.Context) {
	delay := a.cfg.ReconnectBase
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		started := time.Now()
		if err := a.runSession(ctx); err != nil {
			a.logger.Warn("agent: session ended validator_id=%s err=%v", a.cfg.ValidatorID, err)
		}
		// A session that outlived the backoff cap was healthy; start the
		// next reconnect from the base delay instead of where a previous
		// flap left off.
		if time.Since(started) > a.cfg.ReconnectCap {
			delay = a.cfg.ReconnectBase
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter(delay)):
		}
		delay *= 2
		if delay > a.cfg.ReconnectCap {
			delay = a.cfg.ReconnectCap
		}
	}
}

func jitter(base time.Duration) time.Duration {
	return time.Duration(float64(base) * (0.5 + rand.Float64()))
}

// runSession opens one TCP connection, performs the handshake, and serves
// it until failure or ctx cancellation. It always returns a non-nil error
// saying why the session ended (ctx.Err() on cancellation); the caller logs
// it before reconnecting.
func (a *Agent) runSession(ctx context.Context) error {
	conn, err := net.Dial("tcp", a.cfg.BrokerAddr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := netopt.TuneValidatorSession(conn); err != nil {
		a.logger.Warn("agent: socket tuning failed validator_id=%s err=%v", a.cfg.ValidatorID, err)
	}

	hello := wire.Hello{ValidatorID: string(a.cfg.ValidatorID), AuthToken: a.cfg.AuthToken}
	if err := wire.WriteFrame(conn, wire.FrameHello, hello.ValidatorID, "", hello); err != nil {
		return err
	}
	frame, err := wire.ReadFrame(conn)
	if err != nil {
		return err
	}
	var ack wire.HelloAck
	if err := json.Unmarshal(frame.Payload, &ack); err != nil {
		return err
	}
	if !ack.Accepted {
		return &authRejected{reason: ack.Reason}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go a.serveActions(sessionCtx, conn, readErr)

	ticker := time.NewTicker(a.scraper.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-sessionCtx.Done():
			return sessionCtx.Err()
		case err := <-readErr:
			return err
		case <-ticker.C:
			sample := a.scraper.Tick()
			if err := wire.WriteFrame(conn, wire.FrameSample, string(a.cfg.ValidatorID), "", wire.SampleFromModel(sample)); err != nil {
				return err
			}
		}
	}
}

// serveActions reads inbound Action frames and executes them serially,
// writing each ActionResult back on the same connection; actions never
// run concurrently on one host.
func (a *Agent) serveActions(ctx context.Context, conn net.Conn, done chan<- error) {
	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			done <- err
			return
		}
		if frame.Kind != wire.FrameAction {
			continue
		}
		var msg wire.ActionMsg
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			a.logger.Warn("agent: malformed action frame validator_id=%s err=%v", a.cfg.ValidatorID, err)
			continue
		}
		action := wire.ActionToModel(msg)
		result := a.executor.Run(ctx, action)
		if err := wire.WriteFrame(conn, wire.FrameResult, string(a.cfg.ValidatorID), action.ActionID, wire.ResultFromModel(result)); err != nil {
			done <- err
			return
		}
	}
}

type authRejected struct{ reason string }

func (e *authRejected) Error() string { return "agent: handshake rejected: " + e.reason }
