// Package hostlog forwards log lines to the host's structured logging facility.
//
// Callers obtain an opaque category Handle once (subsystem + category, the
// os_log model) and then emit lines against it with one of five severities.
// Emit never fails observably: unknown handles fall back to the default
// category and a panicking sink is contained.
//
// Messages are written as public plaintext. Do not pass secrets.
package hostlog

import (
	"fmt"
	"sync"
)

// Level is a log severity. The numeric values are the os_log_type_t values
// so the managed caller can pass them through unchanged.
type Level uint8

const (
	LevelDefault Level = 0x00
	LevelInfo    Level = 0x01
	LevelDebug   Level = 0x02
	LevelError   Level = 0x10
	LevelFault   Level = 0x11
)

func (l Level) String() string {
	switch l {
	case LevelDefault:
		return "default"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	case LevelError:
		return "error"
	case LevelFault:
		return "fault"
	}
	return fmt.Sprintf("level(%#x)", uint8(l))
}

// Valid reports whether l is one of the five defined severities.
func (l Level) Valid() bool {
	switch l {
	case LevelDefault, LevelInfo, LevelDebug, LevelError, LevelFault:
		return true
	}
	return false
}

// ParseLevel parses a level name as printed by String.
func ParseLevel(s string) (Level, error) {
	for _, l := range []Level{LevelDefault, LevelInfo, LevelDebug, LevelError, LevelFault} {
		if s == l.String() {
			return l, nil
		}
	}
	return LevelDefault, fmt.Errorf("unknown log level %q (want default, info, debug, error or fault)", s)
}

// Handle identifies a category. Zero is the default category.
type Handle uintptr

// Category is a subsystem/category pair.
type Category struct {
	Subsystem string
	Name      string
}

// Sink writes one line for a category. Implementations must be safe for
// concurrent use.
type Sink interface {
	Write(c Category, level Level, msg string)
}

// Emitter emits lines against one bound category.
type Emitter interface {
	Emit(level Level, msg string)
}

// DefaultSubsystem names the category behind Handle 0.
const DefaultSubsystem = "com.jvs-project.syncbridge"

// Forwarder owns the category table and the sink.
type Forwarder struct {
	sink Sink

	mu         sync.RWMutex
	categories map[Handle]Category
	byName     map[Category]Handle
	next       Handle
}

// NewForwarder creates a forwarder writing to sink.
func NewForwarder(sink Sink) *Forwarder {
	def := Category{Subsystem: DefaultSubsystem, Name: "default"}
	return &Forwarder{
		sink:       sink,
		categories: map[Handle]Category{0: def},
		byName:     map[Category]Handle{def: 0},
		next:       1,
	}
}

// Category returns the handle for subsystem/name, creating it on first use.
// The same pair always yields the same handle.
func (f *Forwarder) Category(subsystem, name string) Handle {
	c := Category{Subsystem: subsystem, Name: name}

	f.mu.RLock()
	h, ok := f.byName[c]
	f.mu.RUnlock()
	if ok {
		return h
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.byName[c]; ok {
		return h
	}
	h = f.next
	f.next++
	f.categories[h] = c
	f.byName[c] = h
	return h
}

// Lookup returns the category for h.
func (f *Forwarder) Lookup(h Handle) (Category, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.categories[h]
	return c, ok
}

// Emit writes msg to the category behind h.
func (f *Forwarder) Emit(h Handle, level Level, msg string) {
	c, ok := f.Lookup(h)
	if !ok {
		c, _ = f.Lookup(0)
	}
	if !level.Valid() {
		level = LevelDefault
	}
	defer func() { _ = recover() }()
	f.sink.Write(c, level, msg)
}

// For binds h to an Emitter.
func (f *Forwarder) For(h Handle) Emitter {
	return bound{f: f, h: h}
}

type bound struct {
	f *Forwarder
	h Handle
}

func (b bound) Emit(level Level, msg string) {
	b.f.Emit(b.h, level, msg)
}

// Discard is an Emitter that drops everything.
var Discard Emitter = discard{}

type discard struct{}

func (discard) Emit(Level, string) {}
