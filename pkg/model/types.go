package model

import "time"

// Step identifies one stage of a synchronization call.
type Step string

const (
	StepInit    Step = "init"
	StepSession Step = "session"
	StepSync    Step = "sync"

	// StepRequest attributes failures found while validating the request,
	// before the runtime is touched.
	StepRequest Step = "request"
)

// Steps lists the stages in execution order.
var Steps = []Step{StepInit, StepSession, StepSync}

// BackendType selects the version-control runtime the bridge drives.
type BackendType string

const (
	BackendP4   BackendType = "p4"
	BackendGit  BackendType = "git"
	BackendNoop BackendType = "noop"
)

// Policy selects how the process-wide runtime initialization is shared.
type Policy string

const (
	// PolicySerialize initializes and tears down the runtime on every call,
	// holding a process-wide mutex across the whole span.
	PolicySerialize Policy = "serialize"
	// PolicyPooled initializes the runtime once and shares the handle until
	// the bridge is closed.
	PolicyPooled Policy = "pooled"
)

// Capabilities are the subsystem flags passed to runtime initialization.
type Capabilities uint32

const (
	CapClient Capabilities = 1 << iota
	CapNetwork
	CapTransfer
	CapAll = CapClient | CapNetwork | CapTransfer
)

// HashValue is a SHA-256 hash stored as hex string.
type HashValue string

// Timeouts bounds the network-facing steps. Zero means no bound.
type Timeouts struct {
	SessionOpen time.Duration `json:"session_open"`
	Sync        time.Duration `json:"sync"`
}
