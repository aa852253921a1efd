package model

import "time"

// Lease records one call's hold on the initialized runtime.
type Lease struct {
	HolderNonce string    `json:"holder_nonce"`
	Purpose     string    `json:"purpose,omitempty"`
	AcquiredAt  time.Time `json:"acquired_at"`
	// Generation increments every time the runtime is initialized. Two
	// leases with the same generation share one initialization.
	Generation int64  `json:"generation"`
	Policy     Policy `json:"policy"`
}

// RuntimeState describes the runtime as seen by the guard.
type RuntimeState string

const (
	RuntimeStateDown   RuntimeState = "down"
	RuntimeStateLive   RuntimeState = "live"
	RuntimeStateClosed RuntimeState = "closed"
)
