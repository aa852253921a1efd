package syncbridge_test

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/syncbridge/pkg/config"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/hostlog"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/metrics"
	"github.com/jvs-project/syncbridge/pkg/model"
	"github.com/jvs-project/syncbridge/pkg/syncbridge"
)

type memorySink struct {
	mu    sync.Mutex
	lines []string
}

func (s *memorySink) Write(c hostlog.Category, level hostlog.Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, c.Name+"|"+level.String()+"|"+msg)
}

func (s *memorySink) contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func testOptions(sink hostlog.Sink, env map[string]string) syncbridge.Options {
	return syncbridge.Options{
		Logger:  logging.New(logging.Options{Level: logging.LevelDebug, Output: io.Discard}),
		Sink:    sink,
		Metrics: metrics.NewRegistry(),
		Getenv:  func(k string) string { return env[k] },
	}
}

func TestOpen_NoopBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = model.BackendNoop
	cfg.Audit.Path = filepath.Join(t.TempDir(), "journal.jsonl")
	sink := &memorySink{}

	client, err := syncbridge.Open(cfg, testOptions(sink, nil))
	require.NoError(t, err)
	defer client.Close()

	o := client.Synchronize(context.Background())
	require.True(t, o.OK(), o.Message)

	assert.True(t, sink.contains("bridge|info|synchronize started"))
	assert.True(t, sink.contains("bridge|info|synchronize succeeded"))

	sum, err := client.VerifyJournal()
	require.NoError(t, err)
	assert.True(t, sum.Balanced())
	assert.Equal(t, 1, sum.Counts[model.EventTypeSessionOpen])
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Policy = "whenever"

	_, err := syncbridge.Open(cfg, testOptions(&memorySink{}, nil))
	assert.ErrorIs(t, err, errclass.ErrConfigInvalid)
}

func TestOpen_AppliesPerforceEnvironment(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = model.BackendNoop

	client, err := syncbridge.Open(cfg, testOptions(&memorySink{}, map[string]string{
		"P4PORT": "ssl:edge:1666",
		"P4USER": "builder",
	}))
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "ssl:edge:1666", client.Config().P4.Port)
	assert.Equal(t, model.PolicySerialize, client.Policy())
}

func TestSynchronize_MissingP4Executable(t *testing.T) {
	cfg := config.Default()
	cfg.P4.Executable = filepath.Join(t.TempDir(), "p4-not-installed")
	sink := &memorySink{}

	client, err := syncbridge.Open(cfg, testOptions(sink, nil))
	require.NoError(t, err)
	defer client.Close()

	o := client.Synchronize(context.Background())
	assert.Equal(t, model.StepInit, o.Step)
	assert.Equal(t, errclass.StatusInitialization, o.Status())
	assert.True(t, sink.contains("bridge|error|init failed"))

	err = client.Probe(context.Background())
	assert.ErrorIs(t, err, errclass.ErrInitialization)
}

func TestSynchronize_RejectTransfer(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = model.BackendNoop
	cfg.Transfer = config.TransferReject

	client, err := syncbridge.Open(cfg, testOptions(&memorySink{}, nil))
	require.NoError(t, err)
	defer client.Close()

	o := client.Synchronize(context.Background())
	assert.Equal(t, errclass.StatusSync, o.Status())
}

func TestClose_PooledRuntime(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = model.BackendNoop
	cfg.Policy = model.PolicyPooled

	client, err := syncbridge.Open(cfg, testOptions(&memorySink{}, nil))
	require.NoError(t, err)

	require.True(t, client.Synchronize(context.Background()).OK())
	state, _, _ := client.RuntimeStatus()
	assert.Equal(t, model.RuntimeStateLive, state)

	require.NoError(t, client.Close())
	state, _, _ = client.RuntimeStatus()
	assert.Equal(t, model.RuntimeStateClosed, state)
}

func TestBackends(t *testing.T) {
	assert.ElementsMatch(t,
		[]model.BackendType{model.BackendP4, model.BackendGit, model.BackendNoop},
		syncbridge.Backends())
}
