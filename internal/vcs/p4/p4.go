// Package p4 drives a Perforce server through the p4 command-line client.
//
// Init locates the executable and checks that it runs. OpenSession connects
// with "p4 info", logs in when the request carries a password and makes sure
// the client workspace exists with the requested stream and root. Close logs
// out again if the session created a ticket.
package p4

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// DefaultExecutable is looked up on PATH when Library.Executable is empty.
const DefaultExecutable = "p4"

// clientOptions is written into every client spec the bridge saves. Files
// left writable by a build are overwritten on sync.
const clientOptions = "noallwrite clobber nocompress unlocked nomodtime normdir"

// closeTimeout bounds "p4 logout" during Close, which has no context.
const closeTimeout = 30 * time.Second

// Library is the p4 runtime.
type Library struct {
	// Executable is the p4 binary, either a path or a name on PATH.
	Executable string
	// Env is appended to the process environment of every command.
	Env []string
	Log *logging.Logger
}

// New returns a Library for exe.
func New(exe string, log *logging.Logger) *Library {
	return &Library{Executable: exe, Log: log}
}

func (l *Library) Name() string { return string(model.BackendP4) }

func (l *Library) logger() *logging.Logger {
	if l.Log != nil {
		return l.Log.Named("p4")
	}
	return logging.L().Named("p4")
}

// Init resolves the executable and runs "p4 -V".
func (l *Library) Init(ctx context.Context, caps model.Capabilities) (vcs.Handle, error) {
	exe := l.Executable
	if exe == "" {
		exe = DefaultExecutable
	}
	path, err := exec.LookPath(exe)
	if err != nil {
		return nil, fmt.Errorf("locate p4 executable: %w", err)
	}

	h := &handle{path: path, env: l.Env, caps: caps, log: l.logger()}
	out, err := h.run(ctx, nil, "-V")
	if err != nil {
		return nil, err
	}
	h.version = versionLine(out)
	h.log.Debug("p4 runtime ready", map[string]any{"path": path, "version": h.version})
	return h, nil
}

type handle struct {
	path     string
	env      []string
	caps     model.Capabilities
	version  string
	log      *logging.Logger
	released atomic.Bool
}

func (h *handle) OpenSession(ctx context.Context, req model.SyncRequest) (vcs.Session, error) {
	if h.released.Load() {
		return nil, errclass.ErrInternal.WithMessage("p4 runtime already released")
	}
	if h.caps&model.CapNetwork == 0 {
		return nil, errclass.ErrSession.WithMessage("p4 runtime initialized without network capability")
	}

	s := &session{h: h, req: req}
	info, err := h.tagged(ctx, s.global(), "info", "-s")
	if err != nil {
		return nil, err
	}
	s.serverAddress = info["serverAddress"]
	s.serverVersion = info["serverVersion"]

	if req.Password != "" {
		if _, err := h.run(ctx, strings.NewReader(req.Password+"\n"), append(s.global(), "login")...); err != nil {
			return nil, err
		}
		s.loggedIn = true
	}

	if req.Client != "" {
		if err := s.ensureClient(ctx); err != nil {
			s.logout()
			return nil, err
		}
	}
	return s, nil
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return errclass.ErrInternal.WithMessage("p4 runtime released twice")
	}
	return nil
}

// run executes p4 with args and returns stdout. Failures carry the trimmed
// stderr, or ctx's error when the command was cut short.
func (h *handle) run(ctx context.Context, stdin *strings.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, h.path, args...)
	cmd.Env = append(os.Environ(), h.env...)
	cmd.WaitDelay = time.Second
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("p4 %s: %w", command(args), ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("p4 %s: %s", command(args), collapse(msg))
	}
	return stdout.String(), nil
}

// tagged runs a command with -ztag and parses "... key value" lines.
func (h *handle) tagged(ctx context.Context, global []string, args ...string) (map[string]string, error) {
	full := append([]string{"-ztag"}, global...)
	out, err := h.run(ctx, nil, append(full, args...)...)
	if err != nil {
		return nil, err
	}
	return parseTagged(out), nil
}

type session struct {
	h   *handle
	req model.SyncRequest

	serverAddress string
	serverVersion string
	loggedIn      bool
	clientExists  bool
	clientSaved   bool
	clientStream  string
	clientRoot    string
	closed        atomic.Bool
}

// global returns the connection flags for every command in the session.
func (s *session) global() []string {
	var args []string
	if s.req.Server != "" {
		args = append(args, "-p", s.req.Server)
	}
	if s.req.User != "" {
		args = append(args, "-u", s.req.User)
	}
	if s.req.Client != "" {
		args = append(args, "-c", s.req.Client)
	}
	return args
}

// ensureClient reads the client spec and saves it with "p4 client -i" when
// the client is missing or its stream, root or options differ from the
// request. Without a requested stream there is no view to generate, so a
// missing or mismatched client is an error instead.
func (s *session) ensureClient(ctx context.Context) error {
	spec, err := s.h.tagged(ctx, s.global(), "client", "-o", s.req.Client)
	if err != nil {
		return err
	}
	// A client that does not exist yet comes back as a template without an
	// Access date.
	_, s.clientExists = spec["Access"]
	s.clientStream = spec["Stream"]
	s.clientRoot = spec["Root"]

	root := s.clientRoot
	if s.req.Root != "" {
		root = s.req.Root
	}
	if s.req.Stream == "" {
		switch {
		case !s.clientExists:
			return errclass.ErrSession.WithMessagef("client %q does not exist and no stream was given to create it", s.req.Client)
		case !sameRoot(root, s.clientRoot):
			return errclass.ErrSession.WithMessagef("client %q has root %q, want %q", s.req.Client, s.clientRoot, root)
		}
		return nil
	}

	if s.clientExists &&
		spec["Stream"] == s.req.Stream &&
		sameRoot(root, s.clientRoot) &&
		spec["Options"] == clientOptions {
		return nil
	}

	form := clientForm(s.req.Client, s.req.Stream, root)
	if _, err := s.h.run(ctx, strings.NewReader(form), append(s.global(), "client", "-i")...); err != nil {
		return errclass.ErrSession.Wrap(err, "save client")
	}
	s.h.log.Info("client workspace saved", map[string]any{
		"client":  s.req.Client,
		"stream":  s.req.Stream,
		"root":    root,
		"created": !s.clientExists,
	})
	s.clientSaved = true
	s.clientExists = true
	s.clientStream = s.req.Stream
	s.clientRoot = root
	return nil
}

// clientForm renders a read-only stream client spec for "p4 client -i".
func clientForm(name, stream, root string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Client:\t%s\n", name)
	fmt.Fprintf(&b, "Root:\t%s\n", root)
	fmt.Fprintf(&b, "Options:\t%s\n", clientOptions)
	b.WriteString("Type:\treadonly\n")
	fmt.Fprintf(&b, "Stream:\t%s\n", stream)
	return b.String()
}

func sameRoot(a, b string) bool {
	if a == "" || b == "" {
		return a == b
	}
	return filepath.Clean(a) == filepath.Clean(b)
}

func (s *session) Describe() map[string]any {
	d := map[string]any{
		"backend":        "p4",
		"server":         s.req.Server,
		"server_address": s.serverAddress,
		"server_version": s.serverVersion,
		"logged_in":      s.loggedIn,
	}
	if s.req.Client != "" {
		d["client"] = s.req.Client
		d["client_exists"] = s.clientExists
		d["client_saved"] = s.clientSaved
		if s.clientStream != "" {
			d["client_stream"] = s.clientStream
		}
		if s.clientRoot != "" {
			d["client_root"] = s.clientRoot
		}
	}
	return d
}

func (s *session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return errclass.ErrInternal.WithMessage("p4 session closed twice")
	}
	return s.logout()
}

func (s *session) logout() error {
	if !s.loggedIn {
		return nil
	}
	s.loggedIn = false

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	_, err := s.h.run(ctx, nil, append(s.global(), "logout")...)
	return err
}

func parseTagged(out string) map[string]string {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line, ok := strings.CutPrefix(sc.Text(), "... ")
		if !ok {
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		if _, dup := fields[key]; !dup {
			fields[key] = value
		}
	}
	return fields
}

// versionLine picks the "Rev." line out of "p4 -V".
func versionLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Rev. "); ok {
			return strings.TrimSuffix(rest, ".")
		}
	}
	return ""
}

// command names the p4 subcommand in args for error messages, skipping
// global flags and their values.
func command(args []string) string {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-p", "-u", "-c":
			i++
		case "-ztag":
		default:
			return strings.Join(args[i:], " ")
		}
	}
	return ""
}

// collapse joins p4's multi-line, tab-indented diagnostics into one line.
func collapse(msg string) string {
	var parts []string
	for _, line := range strings.Split(msg, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
