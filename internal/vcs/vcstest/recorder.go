// Package vcstest provides a scriptable, recording vcs runtime for tests.
package vcstest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// Event names recorded by Library.
const (
	EventInit     = "init"
	EventRelease  = "release"
	EventOpen     = "open"
	EventClose    = "close"
	EventTransfer = "transfer"
)

// Library is a vcs.Library that records every lifecycle call and fails or
// panics on demand. The zero value succeeds at every step.
type Library struct {
	InitErr     error
	OpenErr     error
	TransferErr error
	CloseErr    error
	ReleaseErr  error

	InitPanic     any
	OpenPanic     any
	TransferPanic any
	// ClosePanic and ReleasePanic fire after the call is recorded and the
	// live counts are updated.
	ClosePanic   any
	ReleasePanic any

	// Hold, if set, is called while a handle is live, after Init and before
	// Release, so tests can stretch the critical section.
	Hold time.Duration

	mu     sync.Mutex
	events []string

	live     atomic.Int32
	overlaps atomic.Int32
	sessions atomic.Int32
}

func (l *Library) Name() string { return "vcstest" }

func (l *Library) record(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Events returns the recorded events in call order.
func (l *Library) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

// Count returns how many times ev was recorded.
func (l *Library) Count(ev string) int {
	n := 0
	for _, e := range l.Events() {
		if e == ev {
			n++
		}
	}
	return n
}

// Overlaps counts Init calls made while another handle was still live.
func (l *Library) Overlaps() int {
	return int(l.overlaps.Load())
}

// LiveHandles is the number of handles initialized and not yet released.
func (l *Library) LiveHandles() int {
	return int(l.live.Load())
}

// LiveSessions is the number of sessions opened and not yet closed.
func (l *Library) LiveSessions() int {
	return int(l.sessions.Load())
}

func (l *Library) Init(ctx context.Context, _ model.Capabilities) (vcs.Handle, error) {
	l.record(EventInit)
	if l.InitPanic != nil {
		panic(l.InitPanic)
	}
	if l.InitErr != nil {
		return nil, l.InitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.live.Add(1) > 1 {
		l.overlaps.Add(1)
	}
	if l.Hold > 0 {
		time.Sleep(l.Hold)
	}
	return &handle{lib: l}, nil
}

// Transfer returns a vcs.Transfer that records and honors TransferErr and
// TransferPanic.
func (l *Library) Transfer() vcs.Transfer {
	return vcs.TransferFunc(func(ctx context.Context, _ vcs.Session, _ model.SyncRequest) error {
		l.record(EventTransfer)
		if l.TransferPanic != nil {
			panic(l.TransferPanic)
		}
		if l.TransferErr != nil {
			return l.TransferErr
		}
		return ctx.Err()
	})
}

type handle struct {
	lib *Library
}

func (h *handle) OpenSession(ctx context.Context, req model.SyncRequest) (vcs.Session, error) {
	h.lib.record(EventOpen)
	if h.lib.OpenPanic != nil {
		panic(h.lib.OpenPanic)
	}
	if h.lib.OpenErr != nil {
		return nil, h.lib.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.lib.sessions.Add(1)
	return &session{lib: h.lib, server: req.Server}, nil
}

func (h *handle) Release() error {
	h.lib.record(EventRelease)
	h.lib.live.Add(-1)
	if h.lib.ReleasePanic != nil {
		panic(h.lib.ReleasePanic)
	}
	return h.lib.ReleaseErr
}

type session struct {
	lib    *Library
	server string
}

func (s *session) Describe() map[string]any {
	return map[string]any{"backend": "vcstest", "server": s.server}
}

func (s *session) Close() error {
	s.lib.record(EventClose)
	s.lib.sessions.Add(-1)
	if s.lib.ClosePanic != nil {
		panic(s.lib.ClosePanic)
	}
	return s.lib.CloseErr
}
