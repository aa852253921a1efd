// Package cabi holds the process-wide state behind the exported C functions
// in cmd/libsyncbridge. It has no cgo so it can be tested directly.
//
// The client is opened on the first call that needs it. A failed open is not
// cached: the next call tries again, so a fixed config file takes effect
// without restarting the host.
package cabi

import (
	"context"
	"fmt"
	"sync"

	"github.com/jvs-project/syncbridge/pkg/config"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/hostlog"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/syncbridge"
)

// OpenFunc builds the client. fwd is the runtime's forwarder; the client
// must emit through it so handles given to the host stay valid.
type OpenFunc func(fwd *hostlog.Forwarder) (*syncbridge.Client, error)

// Runtime is one process-wide bridge instance.
type Runtime struct {
	open      OpenFunc
	forwarder *hostlog.Forwarder

	mu      sync.Mutex
	client  *syncbridge.Client
	lastErr string
}

// New creates a runtime that opens its client with open and forwards host
// log lines to sink.
func New(open OpenFunc, sink hostlog.Sink) *Runtime {
	return &Runtime{open: open, forwarder: hostlog.NewForwarder(sink)}
}

// Default is the runtime the shared library exports.
var Default = New(OpenFromConfig, hostlog.HostSink(nil))

// OpenFromConfig loads the resolved config file, installs its logger as the
// global one and opens a client on fwd.
func OpenFromConfig(fwd *hostlog.Forwarder) (*syncbridge.Client, error) {
	cfg, err := config.Load(config.Resolve(""))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	format, _ := logging.ParseFormat(cfg.Logging.Format)
	logger := logging.New(logging.Options{Level: level, Format: format})
	logging.SetGlobal(logger)

	return syncbridge.Open(cfg, syncbridge.Options{Logger: logger, Forwarder: fwd})
}

func (r *Runtime) acquire() (*syncbridge.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	c, err := r.open(r.forwarder)
	if err != nil {
		return nil, err
	}
	r.client = c
	return c, nil
}

func (r *Runtime) setLastError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = msg
}

// Synchronize runs one call and returns its status code and diagnostic
// message. The message is empty on success. A panic is reported as
// E_INTERNAL; it never crosses into the host.
func (r *Runtime) Synchronize() (status int, msg string) {
	defer func() {
		if v := recover(); v != nil {
			msg = fmt.Sprintf("internal: panic: %v", v)
			r.forwarder.Emit(0, hostlog.LevelFault, msg)
			r.setLastError(msg)
			status = int(errclass.StatusInternal)
		}
	}()

	c, err := r.acquire()
	if err != nil {
		msg := fmt.Sprintf("open bridge: %v", err)
		r.forwarder.Emit(0, hostlog.LevelError, msg)
		r.setLastError(msg)
		return int(errclass.StatusOf(err)), msg
	}

	o := c.Synchronize(context.Background())
	r.setLastError(o.Message)
	return int(o.Status()), o.Message
}

// CreateLogCategory returns the handle for subsystem/name.
func (r *Runtime) CreateLogCategory(subsystem, name string) uintptr {
	if subsystem == "" {
		subsystem = hostlog.DefaultSubsystem
	}
	return uintptr(r.forwarder.Category(subsystem, name))
}

// EmitLog forwards one line. It never fails.
func (r *Runtime) EmitLog(handle uintptr, level uint8, msg string) {
	r.forwarder.Emit(hostlog.Handle(handle), hostlog.Level(level), msg)
}

// LastError returns the message of the most recent Synchronize, empty after
// a success. It is process-wide, not per thread.
func (r *Runtime) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Shutdown closes the client, releasing a pooled runtime. A later call opens
// a new one.
func (r *Runtime) Shutdown() error {
	r.mu.Lock()
	c := r.client
	r.client = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}
