// Package gitvcs is a git runtime built on go-git.
//
// Init installs the HTTP(S) transport process-wide and Release restores
// go-git's default. A session is one authenticated ref advertisement
// against the remote; nothing is written to disk.
package gitvcs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/jvs-project/syncbridge/internal/vcs"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// DefaultRemoteName names the in-memory remote used for listing.
const DefaultRemoteName = "origin"

// Sentinel errors, checkable with errors.Is.
var (
	ErrNoURL        = errors.New("no remote url")
	ErrAuthRequired = errors.New("authentication required")
	ErrAuthFailed   = errors.New("authentication failed")
	ErrNotFound     = errors.New("repository not found")
)

// Library is the git runtime.
type Library struct {
	// URL is used when a request names no server.
	URL string
	// InsecureSkipTLS disables certificate verification for https remotes.
	InsecureSkipTLS bool
}

func (l *Library) Name() string { return string(model.BackendGit) }

// Init installs an HTTP transport configured for this runtime.
func (l *Library) Init(ctx context.Context, caps model.Capabilities) (vcs.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if l.InsecureSkipTLS {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via git.insecure_skip_tls
	}
	t := githttp.NewClient(&http.Client{Transport: tr})
	client.InstallProtocol("https", t)
	client.InstallProtocol("http", t)

	return &handle{url: l.URL, caps: caps}, nil
}

type handle struct {
	url      string
	caps     model.Capabilities
	released atomic.Bool
}

func (h *handle) OpenSession(ctx context.Context, req model.SyncRequest) (vcs.Session, error) {
	if h.released.Load() {
		return nil, errclass.ErrInternal.WithMessage("git runtime already released")
	}
	url := req.Server
	if url == "" {
		url = h.url
	}
	if url == "" {
		return nil, ErrNoURL
	}
	remoteNeedsNetwork := isNetworkURL(url)
	if remoteNeedsNetwork && h.caps&model.CapNetwork == 0 {
		return nil, errclass.ErrSession.WithMessage("git runtime initialized without network capability")
	}

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: DefaultRemoteName,
		URLs: []string{url},
	})
	opts := &git.ListOptions{}
	if req.Password != "" && remoteNeedsNetwork {
		user := req.User
		if user == "" {
			user = "token"
		}
		opts.Auth = &githttp.BasicAuth{Username: user, Password: req.Password}
	}

	refs, err := remote.ListContext(ctx, opts)
	if err != nil && !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil, wrapListError(url, err)
	}

	s := &session{url: url, refs: len(refs)}
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD {
			if ref.Type() == plumbing.SymbolicReference {
				s.head = ref.Target().String()
			} else {
				s.head = ref.Hash().String()
			}
		}
	}
	return s, nil
}

func (h *handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return errclass.ErrInternal.WithMessage("git runtime released twice")
	}
	client.InstallProtocol("https", githttp.DefaultClient)
	client.InstallProtocol("http", githttp.DefaultClient)
	return nil
}

type session struct {
	url    string
	refs   int
	head   string
	closed atomic.Bool
}

func (s *session) Describe() map[string]any {
	return map[string]any{
		"backend": "git",
		"server":  redact(s.url),
		"refs":    s.refs,
		"head":    s.head,
	}
}

func (s *session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return errclass.ErrInternal.WithMessage("git session closed twice")
	}
	return nil
}

func wrapListError(url string, err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired):
		err = fmt.Errorf("%w: %v", ErrAuthRequired, err)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		err = fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		err = fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("list %s: %w", redact(url), err)
}

func isNetworkURL(url string) bool {
	for _, p := range []string{"http://", "https://", "ssh://", "git://"} {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	// scp-like user@host:path
	return !strings.HasPrefix(url, "file://") && strings.Contains(url, "@") && strings.Contains(url, ":")
}

// redact drops userinfo from URLs so credentials embedded in them never
// reach logs.
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if slash := strings.Index(rest, "/"); slash < 0 || at < slash {
			rest = rest[at+1:]
		}
	}
	return scheme + "://" + rest
}
