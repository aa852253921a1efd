// Command libsyncbridge builds the bridge as a C shared library:
//
//	go build -buildmode=c-shared -o libsyncbridge.dylib ./cmd/libsyncbridge
//
// SyncBridgeSynchronize and SyncBridgeSynchronizeEx return a status code:
//
//	0  success
//	1  runtime initialization failed
//	2  session open failed
//	3  sync failed
//	4  invalid configuration
//	5  internal error
//
// Log levels passed to SyncBridgeEmitLog use the os_log_type_t values.
// Unknown levels are logged at the default level.
package main

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"unsafe"

	"github.com/jvs-project/syncbridge/internal/cabi"
	"github.com/jvs-project/syncbridge/pkg/errclass"
)

// SyncBridgeSynchronize runs one synchronization call.
//
//export SyncBridgeSynchronize
func SyncBridgeSynchronize() C.int {
	status, _ := cabi.Default.Synchronize()
	return C.int(status)
}

// SyncBridgeSynchronizeEx runs one call and copies its diagnostic message,
// truncated and NUL-terminated, into buf.
//
//export SyncBridgeSynchronizeEx
func SyncBridgeSynchronizeEx(buf *C.char, n C.size_t) C.int {
	status, msg := cabi.Default.Synchronize()
	copyOut(buf, n, msg)
	return C.int(status)
}

//export SyncBridgeCreateLogCategory
func SyncBridgeCreateLogCategory(subsystem, category *C.char) C.uintptr_t {
	return C.uintptr_t(cabi.Default.CreateLogCategory(goString(subsystem), goString(category)))
}

//export SyncBridgeEmitLog
func SyncBridgeEmitLog(handle C.uintptr_t, level C.uint8_t, msg *C.char) {
	cabi.Default.EmitLog(uintptr(handle), uint8(level), goString(msg))
}

// SyncBridgeLastError returns the message of the last call, or NULL after a
// success. Free it with SyncBridgeFreeString.
//
//export SyncBridgeLastError
func SyncBridgeLastError() *C.char {
	msg := cabi.Default.LastError()
	if msg == "" {
		return nil
	}
	return C.CString(msg)
}

//export SyncBridgeFreeString
func SyncBridgeFreeString(s *C.char) {
	C.free(unsafe.Pointer(s))
}

// SyncBridgeShutdown closes the bridge and returns the status of its
// teardown.
//
//export SyncBridgeShutdown
func SyncBridgeShutdown() C.int {
	return C.int(errclass.StatusOf(cabi.Default.Shutdown()))
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func copyOut(buf *C.char, n C.size_t, msg string) {
	if buf == nil || n == 0 {
		return
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(n))
	k := copy(dst[:len(dst)-1], msg)
	dst[k] = 0
}

func main() {}
