package vcs

import (
	"context"

	"github.com/jvs-project/syncbridge/pkg/model"
)

// Noop is a runtime with no server behind it. Every step succeeds.
type Noop struct{}

func (Noop) Name() string { return string(model.BackendNoop) }

func (Noop) Init(ctx context.Context, _ model.Capabilities) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return noopHandle{}, nil
}

type noopHandle struct{}

func (noopHandle) OpenSession(ctx context.Context, req model.SyncRequest) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return noopSession{server: req.Server}, nil
}

func (noopHandle) Release() error { return nil }

type noopSession struct{ server string }

func (s noopSession) Describe() map[string]any {
	return map[string]any{"backend": "noop", "server": s.server}
}

func (noopSession) Close() error { return nil }
