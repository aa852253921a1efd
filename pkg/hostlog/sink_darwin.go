//go:build darwin && cgo

package hostlog

/*
#include <os/log.h>
#include <stdint.h>
#include <stdlib.h>

static os_log_t sb_log_create(const char *subsystem, const char *category) {
	return os_log_create(subsystem, category);
}

static void sb_log_emit(os_log_t log, uint8_t type, const char *msg) {
	os_log_with_type(log, (os_log_type_t)type, "%{public}s", msg);
}
*/
import "C"

import (
	"sync"
	"unsafe"

	"github.com/jvs-project/syncbridge/pkg/logging"
)

// OSLogSink writes through os_log. Log objects are created once per
// category and live for the process.
type OSLogSink struct {
	mu   sync.Mutex
	logs map[Category]C.os_log_t
}

// NewOSLogSink creates an os_log-backed sink.
func NewOSLogSink() *OSLogSink {
	return &OSLogSink{logs: make(map[Category]C.os_log_t)}
}

func (s *OSLogSink) Write(c Category, level Level, msg string) {
	log := s.log(c)
	cmsg := C.CString(msg)
	defer C.free(unsafe.Pointer(cmsg))
	C.sb_log_emit(log, C.uint8_t(level), cmsg)
}

func (s *OSLogSink) log(c Category) C.os_log_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.logs[c]; ok {
		return l
	}
	sub := C.CString(c.Subsystem)
	defer C.free(unsafe.Pointer(sub))
	cat := C.CString(c.Name)
	defer C.free(unsafe.Pointer(cat))
	l := C.sb_log_create(sub, cat)
	s.logs[c] = l
	return l
}

// HostSink returns the platform sink: os_log on darwin.
func HostSink(_ *logging.Logger) Sink {
	return NewOSLogSink()
}
