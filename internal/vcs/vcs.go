// Package vcs defines the three-level resource model of a version-control
// client runtime: a process-wide Library that is initialized into a Handle,
// a Handle that opens client Sessions, and a Transfer that moves files over
// an open Session.
package vcs

import (
	"context"

	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// Library is a version-control client runtime. Init mutates process-wide
// state; callers must not call it again while a Handle it returned is live.
type Library interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	Init(ctx context.Context, caps model.Capabilities) (Handle, error)
}

// Handle is an initialized runtime.
type Handle interface {
	// OpenSession connects and authenticates against the server named by req
	// (or the backend's configured default).
	OpenSession(ctx context.Context, req model.SyncRequest) (Session, error)
	// Release tears the runtime down. It is called exactly once.
	Release() error
}

// Session is one open client session. It is owned by a single call.
type Session interface {
	// Describe returns non-secret facts about the session for logs.
	Describe() map[string]any
	// Close disconnects. It is called exactly once on every path.
	Close() error
}

// Transfer updates the workspace to the requested revision over an open
// session. It is the extension point for the actual file transfer.
type Transfer interface {
	Transfer(ctx context.Context, s Session, req model.SyncRequest) error
}

// TransferFunc adapts a function to Transfer.
type TransferFunc func(ctx context.Context, s Session, req model.SyncRequest) error

func (f TransferFunc) Transfer(ctx context.Context, s Session, req model.SyncRequest) error {
	return f(ctx, s, req)
}

// NoopTransfer performs no file transfer and succeeds. The session is
// still opened and closed around it, so the bridge contract is observable
// end to end.
type NoopTransfer struct{}

func (NoopTransfer) Transfer(ctx context.Context, _ Session, _ model.SyncRequest) error {
	return ctx.Err()
}

// RejectTransfer fails every call with a not-implemented sync error.
type RejectTransfer struct{}

func (RejectTransfer) Transfer(context.Context, Session, model.SyncRequest) error {
	return ErrTransferNotImplemented
}

// ErrTransferNotImplemented is returned by RejectTransfer.
var ErrTransferNotImplemented = errclass.ErrSync.WithMessage("file transfer is not implemented")
