// Package guard owns the process-wide version-control runtime and hands out
// scoped leases on it.
//
// Each library name has one process-wide slot, held from Init until the
// matching Release. Managers for the same library, including ones created
// after another was closed, wait on that slot, so at most one handle per
// library is live in the process.
//
// Under PolicySerialize every lease initializes the runtime and releasing it
// tears the runtime down, with the slot held for the whole span. Under
// PolicyPooled the runtime is initialized on first use, shared by concurrent
// leases, and torn down when the manager is closed and the last lease is
// returned; the slot stays taken until then.
package guard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// Hooks observe runtime transitions. Either may be nil.
type Hooks struct {
	OnInit    func(generation int64, err error)
	OnRelease func(generation int64, err error)
}

var (
	slotsMu sync.Mutex
	slots   = make(map[string]chan struct{})
)

// slotFor returns the process-wide slot for a library name.
func slotFor(name string) chan struct{} {
	slotsMu.Lock()
	defer slotsMu.Unlock()
	slot, ok := slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		slots[name] = slot
	}
	return slot
}

// Manager hands out leases on one vcs.Library.
type Manager struct {
	lib    vcs.Library
	policy model.Policy
	caps   model.Capabilities
	hooks  Hooks

	// slot is shared by every manager for the same library name.
	slot chan struct{}

	// generationSeq counts Init calls; read and written atomically.
	generationSeq int64

	mu         sync.Mutex
	handle     vcs.Handle
	generation int64
	refs       int
	serialized int
	closed     bool
}

// NewManager creates a manager for lib. An empty policy means PolicySerialize.
func NewManager(lib vcs.Library, policy model.Policy, caps model.Capabilities, hooks Hooks) (*Manager, error) {
	switch policy {
	case "":
		policy = model.PolicySerialize
	case model.PolicySerialize, model.PolicyPooled:
	default:
		return nil, errclass.ErrConfigInvalid.WithMessagef("unknown runtime policy %q", policy)
	}
	return &Manager{
		lib:    lib,
		policy: policy,
		caps:   caps,
		hooks:  hooks,
		slot:   slotFor(lib.Name()),
	}, nil
}

// Policy returns the active policy.
func (m *Manager) Policy() model.Policy {
	return m.policy
}

// Acquire returns a lease on an initialized runtime. The caller must call
// Release on the lease exactly once, on every path. Initialization failures
// are classified as E_INITIALIZATION.
func (m *Manager) Acquire(ctx context.Context, purpose string) (*Lease, error) {
	if m.policy == model.PolicyPooled {
		return m.acquirePooled(ctx, purpose)
	}
	return m.acquireSerialized(ctx, purpose)
}

func (m *Manager) acquireSerialized(ctx context.Context, purpose string) (*Lease, error) {
	if err := m.takeSlot(ctx); err != nil {
		return nil, err
	}
	held := true
	defer func() {
		if held {
			m.freeSlot()
		}
	}()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errclass.ErrInitialization.WithMessage("runtime manager is closed")
	}
	m.mu.Unlock()

	h, gen, err := m.initLocked(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.serialized++
	m.mu.Unlock()
	held = false
	return m.newLease(h, gen, purpose), nil
}

func (m *Manager) acquirePooled(ctx context.Context, purpose string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errclass.ErrInitialization.WithMessage("runtime manager is closed")
	}
	if m.handle == nil {
		if err := m.takeSlot(ctx); err != nil {
			return nil, err
		}
		held := true
		defer func() {
			if held {
				m.freeSlot()
			}
		}()
		h, gen, err := m.initLocked(ctx)
		if err != nil {
			return nil, err
		}
		held = false
		m.handle = h
		m.generation = gen
	}
	m.refs++
	return m.newLease(m.handle, m.generation, purpose), nil
}

// takeSlot waits for the process-wide slot of the library.
func (m *Manager) takeSlot(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errclass.ErrInitialization.Wrap(ctx.Err(), "wait for runtime")
	}
}

func (m *Manager) freeSlot() {
	<-m.slot
}

// initLocked runs Library.Init. The caller holds the library's slot, so only
// one Init is outstanding per library in the process.
func (m *Manager) initLocked(ctx context.Context) (vcs.Handle, int64, error) {
	gen := atomic.AddInt64(&m.generationSeq, 1)
	h, err := m.lib.Init(ctx, m.caps)
	if err == nil && h == nil {
		err = fmt.Errorf("%s returned no handle", m.lib.Name())
	}
	if m.hooks.OnInit != nil {
		m.hooks.OnInit(gen, err)
	}
	if err != nil {
		return nil, 0, errclass.ErrInitialization.Wrap(err, m.lib.Name()+" init")
	}
	return h, gen, nil
}

func (m *Manager) newLease(h vcs.Handle, gen int64, purpose string) *Lease {
	return &Lease{
		Lease: model.Lease{
			HolderNonce: uuid.NewString(),
			Purpose:     purpose,
			AcquiredAt:  time.Now().UTC(),
			Generation:  gen,
			Policy:      m.policy,
		},
		handle: h,
		m:      m,
	}
}

func (m *Manager) release(l *Lease) error {
	if m.policy == model.PolicyPooled {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.refs--
		if m.closed && m.refs == 0 {
			return m.teardownLocked()
		}
		return nil
	}

	defer func() {
		m.mu.Lock()
		m.serialized--
		m.mu.Unlock()
		m.freeSlot()
	}()
	err := releaseHandle(l.handle)
	if m.hooks.OnRelease != nil {
		m.hooks.OnRelease(l.Generation, err)
	}
	if err != nil {
		return fmt.Errorf("release runtime: %w", err)
	}
	return nil
}

// teardownLocked releases the pooled handle and frees the slot. Caller
// holds mu.
func (m *Manager) teardownLocked() error {
	if m.handle == nil {
		return nil
	}
	h, gen := m.handle, m.generation
	m.handle = nil
	defer m.freeSlot()
	err := releaseHandle(h)
	if m.hooks.OnRelease != nil {
		m.hooks.OnRelease(gen, err)
	}
	if err != nil {
		return fmt.Errorf("release runtime: %w", err)
	}
	return nil
}

// PanicError is returned when a runtime's Release panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// releaseHandle calls h.Release, turning a panic into a *PanicError so the
// slot is freed and the release hook still sees the failure.
func releaseHandle(h vcs.Handle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return h.Release()
}

// Close stops new leases. Under PolicyPooled the shared runtime is torn
// down now if no lease is outstanding, otherwise when the last one is
// released. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.policy == model.PolicyPooled && m.refs == 0 {
		return m.teardownLocked()
	}
	return nil
}

// Status reports the runtime state, the generation of the live runtime (or
// the last one) and the number of outstanding pooled leases.
func (m *Manager) Status() (model.RuntimeState, int64, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gen := atomic.LoadInt64(&m.generationSeq)
	switch {
	case m.closed && m.handle == nil:
		return model.RuntimeStateClosed, gen, m.refs
	case m.handle != nil || m.serialized > 0:
		return model.RuntimeStateLive, gen, m.refs
	}
	return model.RuntimeStateDown, gen, m.refs
}
