// Package bridge runs synchronization calls: initialize the runtime, open a
// client session, transfer, then close the session and release the runtime
// on every exit path.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jvs-project/syncbridge/internal/audit"
	"github.com/jvs-project/syncbridge/internal/guard"
	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/hostlog"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/metrics"
	"github.com/jvs-project/syncbridge/pkg/model"
	"github.com/jvs-project/syncbridge/pkg/pathutil"
)

// Notifier is told when a call starts and how it ended. The webhook client
// implements it.
type Notifier interface {
	SyncStart(callID string, req model.SyncRequest)
	SyncFinished(o model.Outcome, req model.SyncRequest)
}

// Options configures a Bridge. Library is required; every other field has a
// usable zero value.
type Options struct {
	Library  vcs.Library
	Transfer vcs.Transfer
	Policy   model.Policy
	// Capabilities passed to runtime initialization. Zero means CapAll.
	Capabilities model.Capabilities
	Timeouts     model.Timeouts
	// Request is used by Synchronize.
	Request model.SyncRequest

	Logger   *logging.Logger
	Emitter  hostlog.Emitter
	Metrics  *metrics.Registry
	Journal  audit.Journal
	Notifier Notifier
}

// Bridge is safe for concurrent use. Concurrent calls are ordered by the
// runtime policy.
type Bridge struct {
	guard    *guard.Manager
	transfer vcs.Transfer
	timeouts model.Timeouts
	request  model.SyncRequest

	log     *logging.Logger
	emit    hostlog.Emitter
	metrics *metrics.Registry
	journal audit.Journal
	notify  Notifier
}

// New creates a Bridge. It does not touch the runtime.
func New(opts Options) (*Bridge, error) {
	if opts.Library == nil {
		return nil, errclass.ErrConfigInvalid.WithMessage("no version-control library configured")
	}
	b := &Bridge{
		transfer: opts.Transfer,
		timeouts: opts.Timeouts,
		request:  opts.Request,
		log:      opts.Logger,
		emit:     opts.Emitter,
		metrics:  opts.Metrics,
		journal:  opts.Journal,
		notify:   opts.Notifier,
	}
	if b.transfer == nil {
		b.transfer = vcs.NoopTransfer{}
	}
	if b.log == nil {
		b.log = logging.L()
	}
	b.log = b.log.Named("bridge").WithFields(map[string]any{"backend": opts.Library.Name()})
	if b.emit == nil {
		b.emit = hostlog.Discard
	}
	if b.metrics == nil {
		b.metrics = metrics.NewRegistry()
	}
	if b.journal == nil {
		b.journal = audit.Nop{}
	}

	caps := opts.Capabilities
	if caps == 0 {
		caps = model.CapAll
	}
	m, err := guard.NewManager(opts.Library, opts.Policy, caps, guard.Hooks{
		OnInit:    b.onRuntimeInit,
		OnRelease: b.onRuntimeRelease,
	})
	if err != nil {
		return nil, err
	}
	b.guard = m
	return b, nil
}

// Synchronize runs one call with the configured request.
func (b *Bridge) Synchronize(ctx context.Context) model.Outcome {
	return b.SynchronizeRequest(ctx, b.request)
}

// SynchronizeRequest runs one call for req. The outcome is Success only if
// init, session and sync all succeeded; otherwise it carries the class and
// step of the first failure. Teardown has completed when it returns.
func (b *Bridge) SynchronizeRequest(ctx context.Context, req model.SyncRequest) model.Outcome {
	callID := uuid.NewString()
	start := time.Now()
	log := b.log.WithFields(map[string]any{"call_id": callID})

	if b.notify != nil {
		b.notify.SyncStart(callID, req)
	}
	b.emit.Emit(hostlog.LevelInfo, fmt.Sprintf("synchronize started (call %s)", callID))
	log.Info("synchronize started", req.Fields())

	o := b.run(ctx, callID, req, log)
	o.Duration = time.Since(start)

	b.metrics.RecordSynchronize(o.OK(), o.Duration)
	b.record(log, model.EventTypeOutcome, callID, 0, map[string]any{
		"result": o.Result(),
		"step":   string(o.Step),
		"code":   o.Code,
		"status": int(o.Status()),
	})
	if o.OK() {
		b.emit.Emit(hostlog.LevelInfo, fmt.Sprintf("synchronize succeeded in %s", o.Duration.Round(time.Millisecond)))
		log.Info("synchronize succeeded", map[string]any{"duration_ms": o.Duration.Milliseconds()})
	} else {
		log.ErrorErr("synchronize failed", o.Err(), map[string]any{
			"step":        string(o.Step),
			"code":        o.Code,
			"duration_ms": o.Duration.Milliseconds(),
		})
	}
	if b.notify != nil {
		b.notify.SyncFinished(o, req)
	}
	return o
}

// run performs the three steps. Its deferred calls close the session and
// release the lease, so both have happened by the time the outcome reaches
// the caller.
func (b *Bridge) run(ctx context.Context, callID string, req model.SyncRequest, log *logging.Logger) model.Outcome {
	req, err := pathutil.NormalizeRequest(req)
	if err != nil {
		return b.fail(callID, model.StepRequest, err)
	}

	// Step 1: initialize the runtime (or join the pooled one).
	var lease *guard.Lease
	err = b.step(model.StepInit, func() error {
		var err error
		lease, err = b.guard.Acquire(ctx, "synchronize")
		return err
	})
	if err != nil {
		return b.fail(callID, model.StepInit, err)
	}
	log = log.WithFields(map[string]any{"generation": lease.Generation})
	defer func() {
		if err := contain(lease.Release); err != nil {
			b.teardownFailed(log, "runtime", err)
		}
	}()

	// Step 2: open the client session.
	var sess vcs.Session
	err = b.step(model.StepSession, func() error {
		sctx, cancel := withTimeout(ctx, b.timeouts.SessionOpen)
		defer cancel()
		var err error
		sess, err = lease.Handle().OpenSession(sctx, req)
		if err == nil && sess == nil {
			err = errors.New("backend returned no session")
		}
		return timedOut(sctx, err, "session open", b.timeouts.SessionOpen)
	})
	if err != nil {
		return b.fail(callID, model.StepSession, err)
	}
	b.metrics.RecordSessionOpen()
	b.record(log, model.EventTypeSessionOpen, callID, lease.Generation, sess.Describe())
	log.Debug("session open", sess.Describe())
	defer func() {
		err := contain(sess.Close)
		b.metrics.RecordSessionClose(err)
		details := map[string]any{}
		if err != nil {
			details["error"] = err.Error()
			b.teardownFailed(log, "session", err)
		}
		b.record(log, model.EventTypeSessionClose, callID, lease.Generation, details)
	}()

	// Step 3: transfer.
	if _, ok := b.transfer.(vcs.NoopTransfer); ok {
		b.emit.Emit(hostlog.LevelInfo, fmt.Sprintf("no file transfer performed for %s%s",
			req.EffectiveFileSpec(), req.EffectiveRevision()))
	}
	err = b.step(model.StepSync, func() error {
		tctx, cancel := withTimeout(ctx, b.timeouts.Sync)
		defer cancel()
		return timedOut(tctx, b.transfer.Transfer(tctx, sess, req), "sync", b.timeouts.Sync)
	})
	b.record(log, model.EventTypeSync, callID, lease.Generation, map[string]any{
		"filespec": req.EffectiveFileSpec(),
		"revision": req.EffectiveRevision(),
		"ok":       err == nil,
	})
	if err != nil {
		return b.fail(callID, model.StepSync, err)
	}
	return model.Succeeded(callID, 0)
}

// Probe initializes and releases the runtime without opening a session.
func (b *Bridge) Probe(ctx context.Context) error {
	var lease *guard.Lease
	err := b.step(model.StepInit, func() error {
		var err error
		lease, err = b.guard.Acquire(ctx, "probe")
		return err
	})
	if err != nil {
		return classify(model.StepInit, err)
	}
	if err := contain(lease.Release); err != nil {
		return errclass.ErrInitialization.Wrap(err, "probe teardown")
	}
	return nil
}

// Status reports the runtime state, the latest generation and the number of
// outstanding pooled leases.
func (b *Bridge) Status() (model.RuntimeState, int64, int) {
	return b.guard.Status()
}

// Policy returns the runtime policy in effect.
func (b *Bridge) Policy() model.Policy {
	return b.guard.Policy()
}

// Close stops new calls. A pooled runtime is released once the last
// in-flight call returns.
func (b *Bridge) Close() error {
	return b.guard.Close()
}

// step runs fn, turning a panic into an error and recording the step result.
func (b *Bridge) step(s model.Step, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
		b.metrics.RecordStep(string(s), err == nil)
	}()
	return fn()
}

// contain runs a teardown call, turning a panic into an error so the
// remaining teardown still runs and the caller still gets an outcome.
func contain(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return fn()
}

func (b *Bridge) fail(callID string, s model.Step, err error) model.Outcome {
	o := model.Failed(callID, s, classify(s, err), errclass.ErrInternal, 0)
	b.emit.Emit(levelFor(err), fmt.Sprintf("%s failed: %s", s, strings.TrimPrefix(o.Message, string(s)+": ")))
	return o
}

func (b *Bridge) teardownFailed(log *logging.Logger, resource string, err error) {
	b.emit.Emit(levelFor(err), fmt.Sprintf("%s teardown failed: %v", resource, err))
	log.ErrorErr("teardown failed", err, map[string]any{"resource": resource})
}

// levelFor reports panics at fault level and everything else as errors.
func levelFor(err error) hostlog.Level {
	var pe *panicError
	var gpe *guard.PanicError
	if errors.As(err, &pe) || errors.As(err, &gpe) {
		return hostlog.LevelFault
	}
	return hostlog.LevelError
}

func (b *Bridge) record(log *logging.Logger, ev model.AuditEventType, callID string, gen int64, details map[string]any) {
	if err := b.journal.Append(ev, callID, gen, details); err != nil {
		log.Warn("audit append failed", map[string]any{"event": string(ev), "error": err.Error()})
	}
}

func (b *Bridge) onRuntimeInit(gen int64, err error) {
	b.metrics.RecordRuntime("init", err)
	if err != nil {
		return
	}
	b.record(b.log, model.EventTypeRuntimeInit, "", gen, nil)
}

func (b *Bridge) onRuntimeRelease(gen int64, err error) {
	b.metrics.RecordRuntime("release", err)
	var details map[string]any
	if err != nil {
		details = map[string]any{"error": err.Error()}
	}
	b.record(b.log, model.EventTypeRuntimeRelease, "", gen, details)
}

// classify gives err the class of the step it failed in. A class the error
// already carried stays reachable through errors.Is and errors.As, but the
// reported status always matches the step.
func classify(s model.Step, err error) error {
	class := stepClass(s)
	var be *errclass.BridgeError
	if errors.As(err, &be) && be.Code == class.Code {
		return err
	}
	return class.Wrap(err, "")
}

func stepClass(s model.Step) *errclass.BridgeError {
	switch s {
	case model.StepInit:
		return errclass.ErrInitialization
	case model.StepSession:
		return errclass.ErrSession
	case model.StepSync:
		return errclass.ErrSync
	case model.StepRequest:
		return errclass.ErrConfigInvalid
	}
	return errclass.ErrInternal
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// timedOut names the bound when err was caused by ctx's deadline.
func timedOut(ctx context.Context, err error, what string, d time.Duration) error {
	if err == nil || d <= 0 || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s timed out after %s: %w", what, d, err)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
