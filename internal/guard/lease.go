package guard

import (
	"sync/atomic"

	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// Lease is one call's scoped hold on the runtime.
type Lease struct {
	model.Lease

	handle   vcs.Handle
	m        *Manager
	released atomic.Bool
}

// Handle returns the initialized runtime. It must not be used after Release.
func (l *Lease) Handle() vcs.Handle {
	return l.handle
}

// Release returns the lease. Under PolicySerialize this tears the runtime
// down. A second Release is an error and has no effect.
func (l *Lease) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return errclass.ErrInternal.WithMessagef("lease %s already released", l.HolderNonce)
	}
	return l.m.release(l)
}
