//go:build !darwin || !cgo

package hostlog

import "github.com/jvs-project/syncbridge/pkg/logging"

// HostSink returns the platform sink: zap on hosts without os_log.
func HostSink(logger *logging.Logger) Sink {
	return NewZapSink(logger)
}
