// Package webhook posts signed notifications about synchronization calls.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jvs-project/syncbridge/pkg/config"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// EventType names a notification.
type EventType string

const (
	EventSyncStart    EventType = "sync.start"
	EventSyncComplete EventType = "sync.complete"
	EventSyncFailed   EventType = "sync.failed"
)

// Headers set on every delivery.
const (
	HeaderEvent     = "X-SyncBridge-Event"
	HeaderSignature = "X-SyncBridge-Signature"
)

// Event is the JSON payload posted to hooks.
type Event struct {
	Event      EventType      `json:"event"`
	Timestamp  string         `json:"timestamp"`
	CallID     string         `json:"call_id,omitempty"`
	Server     string         `json:"server,omitempty"`
	Client     string         `json:"client,omitempty"`
	Stream     string         `json:"stream,omitempty"`
	Step       model.Step     `json:"step,omitempty"`
	Code       string         `json:"code,omitempty"`
	Status     int            `json:"status"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// HookConfig is one endpoint.
type HookConfig struct {
	URL     string
	Secret  string
	Events  []EventType
	Timeout time.Duration
}

// Config controls delivery.
type Config struct {
	Hooks      []HookConfig
	Enabled    bool
	MaxRetries int
	RetryDelay time.Duration
	QueueSize  int
}

// DefaultConfig returns the default webhook configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
		QueueSize:  100,
	}
}

// FromConfig converts the file configuration. Secrets are read from the
// environment variables each hook names.
func FromConfig(wc config.WebhooksConfig, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := DefaultConfig()
	cfg.Enabled = wc.Enabled
	cfg.MaxRetries = wc.MaxRetries
	if wc.QueueSize > 0 {
		cfg.QueueSize = wc.QueueSize
	}
	if wc.RetryDelay != "" {
		d, err := time.ParseDuration(wc.RetryDelay)
		if err != nil {
			return nil, fmt.Errorf("webhooks.retry_delay: %w", err)
		}
		cfg.RetryDelay = d
	}
	for _, h := range wc.Hooks {
		hook := HookConfig{URL: h.URL}
		if h.SecretEnv != "" {
			hook.Secret = getenv(h.SecretEnv)
		}
		for _, e := range h.Events {
			hook.Events = append(hook.Events, EventType(e))
		}
		if len(hook.Events) == 0 {
			hook.Events = []EventType{"*"}
		}
		if h.Timeout != "" {
			d, err := time.ParseDuration(h.Timeout)
			if err != nil {
				return nil, fmt.Errorf("webhook %s timeout: %w", h.URL, err)
			}
			hook.Timeout = d
		}
		cfg.Hooks = append(cfg.Hooks, hook)
	}
	return cfg, nil
}

// Client delivers events to the configured hooks.
type Client struct {
	config *Config
	http   *http.Client
	log    *logging.Logger
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a client and starts its background worker when
// delivery is enabled. A nil logger uses the global one.
func NewClient(cfg *Config, log *logging.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logging.L()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log.Named("webhook"),
		queue:  make(chan *job, size),
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.Enabled {
		c.wg.Add(1)
		go c.worker()
	}
	return c
}

func (c *Client) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			for {
				select {
				case j := <-c.queue:
					c.deliver(j)
				default:
					return
				}
			}
		case j := <-c.queue:
			c.deliver(j)
		}
	}
}

// Send delivers event to every hook subscribed to it. When async is true the
// deliveries are queued and Send never blocks; a full queue drops the event.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled || c.closed {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if matches(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}
	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	if async {
		for _, hook := range hooks {
			select {
			case c.queue <- &job{event: event, hook: hook}:
			default:
				c.log.Warn("webhook queue full, dropping event", map[string]any{
					"event": string(event.Event),
					"url":   hook.URL,
				})
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) deliver(j *job) {
	if err := c.sendSync(j); err != nil {
		c.log.ErrorErr("webhook delivery failed", err, map[string]any{
			"event": string(j.event.Event),
			"url":   j.hook.URL,
		})
	}
}

func (c *Client) sendSync(j *job) error {
	payload, err := json.Marshal(j.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return fmt.Errorf("%w (last error: %v)", c.ctx.Err(), lastErr)
			case <-time.After(c.config.RetryDelay):
			}
		}
		if lastErr = c.post(j.hook, j.event.Event, payload); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (c *Client) post(hook HookConfig, event EventType, payload []byte) error {
	ctx := context.Background()
	if hook.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hook.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "syncbridge-webhook/1")
	req.Header.Set(HeaderEvent, string(event))
	if hook.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, hook.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

// Sign returns the signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func matches(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close stops accepting events, drains the queue and waits for the worker.
// Retries still pending are abandoned.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// SyncStart queues a sync.start event.
func (c *Client) SyncStart(callID string, req model.SyncRequest) {
	_ = c.Send(Event{
		Event:  EventSyncStart,
		CallID: callID,
		Server: req.Server,
		Client: req.Client,
		Stream: req.Stream,
	}, true)
}

// SyncFinished queues sync.complete or sync.failed for o.
func (c *Client) SyncFinished(o model.Outcome, req model.SyncRequest) {
	ev := Event{
		Event:      EventSyncComplete,
		CallID:     o.CallID,
		Server:     req.Server,
		Client:     req.Client,
		Stream:     req.Stream,
		Status:     int(o.Status()),
		DurationMS: o.Duration.Milliseconds(),
	}
	if !o.OK() {
		ev.Event = EventSyncFailed
		ev.Step = o.Step
		ev.Code = o.Code
		ev.Error = o.Message
	}
	_ = c.Send(ev, true)
}
