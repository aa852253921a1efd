package syncbridge

import (
	"context"
	"fmt"
	"os"

	"github.com/jvs-project/syncbridge/internal/audit"
	"github.com/jvs-project/syncbridge/internal/bridge"
	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/pkg/config"
	"github.com/jvs-project/syncbridge/pkg/hostlog"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/metrics"
	"github.com/jvs-project/syncbridge/pkg/model"
	"github.com/jvs-project/syncbridge/pkg/webhook"
)

// BridgeCategory is the host log category the bridge emits under.
const BridgeCategory = "bridge"

// Options overrides the collaborators Open would otherwise build from the
// configuration. Every field is optional.
type Options struct {
	// Logger replaces the logger built from cfg.Logging.
	Logger *logging.Logger
	// Sink replaces the platform host log sink.
	Sink hostlog.Sink
	// Forwarder is used as is when set; Sink is then ignored. It lets a
	// caller hand out category handles before the client exists.
	Forwarder *hostlog.Forwarder
	// Metrics replaces the process-wide registry.
	Metrics *metrics.Registry
	// Getenv replaces os.Getenv for credentials and P4 overrides.
	Getenv func(string) string
	// Library and Transfer replace the runtime and transfer built from
	// cfg.Backend and cfg.Transfer.
	Library  vcs.Library
	Transfer vcs.Transfer
}

// Client is an open bridge.
type Client struct {
	cfg       *config.Config
	log       *logging.Logger
	forwarder *hostlog.Forwarder
	metrics   *metrics.Registry
	webhooks  *webhook.Client
	bridge    *bridge.Bridge
	journal   string
}

// OpenDefault loads the configuration from its resolved location and opens
// a client.
func OpenDefault() (*Client, error) {
	cfg, err := config.Load(config.Resolve(""))
	if err != nil {
		return nil, err
	}
	return Open(cfg, Options{})
}

// Open validates cfg and builds a client. The runtime is not initialized
// until the first call.
func Open(cfg *config.Config, opts Options) (*Client, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeouts, err := cfg.TimeoutValues()
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		level, _ := logging.ParseLevel(cfg.Logging.Level)
		format, _ := logging.ParseFormat(cfg.Logging.Format)
		log = logging.New(logging.Options{Level: level, Format: format})
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.Default()
	}
	fwd := opts.Forwarder
	if fwd == nil {
		sink := opts.Sink
		if sink == nil {
			sink = hostlog.HostSink(log)
		}
		fwd = hostlog.NewForwarder(sink)
	}

	c := &Client{cfg: cfg, log: log, forwarder: fwd, metrics: reg, journal: cfg.Audit.Path}

	lib := opts.Library
	if lib == nil {
		lib = newLibrary(cfg, log)
	}
	transfer := opts.Transfer
	if transfer == nil {
		transfer = newTransfer(cfg)
	}
	bopts := bridge.Options{
		Library:  lib,
		Transfer: transfer,
		Policy:   cfg.Policy,
		Timeouts: timeouts,
		Request:  cfg.Request(getenv),
		Logger:   log,
		Emitter:  fwd.For(fwd.Category(hostlog.DefaultSubsystem, BridgeCategory)),
		Metrics:  reg,
	}
	if cfg.Audit.Path != "" {
		bopts.Journal = audit.NewFileAppender(cfg.Audit.Path)
	}
	if cfg.Webhooks.Enabled {
		wcfg, err := webhook.FromConfig(cfg.Webhooks, getenv)
		if err != nil {
			return nil, fmt.Errorf("webhooks: %w", err)
		}
		c.webhooks = webhook.NewClient(wcfg, log)
		bopts.Notifier = c.webhooks
	}

	b, err := bridge.New(bopts)
	if err != nil {
		if c.webhooks != nil {
			c.webhooks.Close()
		}
		return nil, err
	}
	c.bridge = b
	return c, nil
}

// Synchronize runs one call against the configured workspace.
func (c *Client) Synchronize(ctx context.Context) model.Outcome {
	return c.bridge.Synchronize(ctx)
}

// SynchronizeRequest runs one call against req. Empty fields are not filled
// from the configuration.
func (c *Client) SynchronizeRequest(ctx context.Context, req model.SyncRequest) model.Outcome {
	return c.bridge.SynchronizeRequest(ctx, req)
}

// Probe initializes and releases the runtime without contacting a server.
func (c *Client) Probe(ctx context.Context) error {
	return c.bridge.Probe(ctx)
}

// RuntimeStatus reports the runtime state, generation and outstanding pooled
// leases.
func (c *Client) RuntimeStatus() (model.RuntimeState, int64, int) {
	return c.bridge.Status()
}

// Policy returns the runtime policy in effect.
func (c *Client) Policy() model.Policy {
	return c.bridge.Policy()
}

// Config returns the effective configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Logger returns the client's logger.
func (c *Client) Logger() *logging.Logger {
	return c.log
}

// Forwarder returns the host log forwarder.
func (c *Client) Forwarder() *hostlog.Forwarder {
	return c.forwarder
}

// Metrics returns the metrics registry.
func (c *Client) Metrics() *metrics.Registry {
	return c.metrics
}

// VerifyJournal walks the lifecycle journal. It returns an empty summary when
// the journal is disabled.
func (c *Client) VerifyJournal() (audit.Summary, error) {
	if c.journal == "" {
		return audit.Summary{Counts: map[model.AuditEventType]int{}}, nil
	}
	return audit.Verify(c.journal)
}

// Close releases a pooled runtime, flushes pending webhooks and syncs the
// logger.
func (c *Client) Close() error {
	err := c.bridge.Close()
	if c.webhooks != nil {
		c.webhooks.Close()
	}
	_ = c.log.Sync()
	return err
}

func newTransfer(cfg *config.Config) vcs.Transfer {
	if cfg.Transfer == config.TransferReject {
		return vcs.RejectTransfer{}
	}
	return vcs.NoopTransfer{}
}
