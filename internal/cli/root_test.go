package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvs-project/syncbridge/pkg/color"
	"github.com/jvs-project/syncbridge/pkg/config"
	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/hostlog"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/model"
)

func executeCommand(root *cobra.Command, args ...string) (stdout string, err error) {
	// Capture os.Stdout since the CLI prints with fmt directly
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		io.Copy(&buf, r)
		close(done)
	}()

	root.SetArgs(args)
	err = root.Execute()

	w.Close()
	<-done
	os.Stdout = oldStdout
	return buf.String(), err
}

func createTestRootCmd() *cobra.Command {
	jsonOutput = false
	configPath = ""
	noColor = false
	syncFlags = model.SyncRequest{}
	configInitForce = false
	metricsAddr = ""
	logSubsystem = hostlog.DefaultSubsystem
	logCategory = "cli"
	logLevel = "default"
	color.Disable()

	cmd := &cobra.Command{
		Use:           "syncbridge",
		Short:         "syncbridge - version-control synchronization bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(syncCmd)
	cmd.AddCommand(doctorCmd)
	cmd.AddCommand(logCmd)
	cmd.AddCommand(configCmd)
	cmd.AddCommand(metricsCmd)
	cmd.AddCommand(completionCmd)
	return cmd
}

// writeConfig saves cfg to a temp dir and returns its path. P4 environment
// overrides are cleared so the host environment cannot leak in.
func writeConfig(t *testing.T, edit func(*config.Config)) string {
	t.Helper()
	for _, k := range []string{"P4PORT", "P4USER", "P4CLIENT", config.EnvConfigPath} {
		t.Setenv(k, "")
	}
	cfg := config.Default()
	cfg.Backend = model.BackendNoop
	cfg.Logging.Level = "error"
	if edit != nil {
		edit(cfg)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.Save(path, cfg))
	return path
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitError
	require.True(t, errors.As(err, &ee), "expected exitError, got %v", err)
	return ee.code
}

func TestRootCommand_Help(t *testing.T) {
	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sync")
	assert.Contains(t, stdout, "doctor")
}

func TestRootCommand_JSONFlag(t *testing.T) {
	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "--json", "--help")
	require.NoError(t, err)
	assert.True(t, jsonOutput)
}

func TestSyncCommand_Success(t *testing.T) {
	path := writeConfig(t, nil)

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--config", path, "sync")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Synchronized")
	assert.Contains(t, stdout, "(call ")
}

func TestSyncCommand_JSON(t *testing.T) {
	path := writeConfig(t, nil)

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--config", path, "--json", "sync")
	require.NoError(t, err)

	var res syncResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.Equal(t, "success", res.Result)
	assert.Equal(t, 0, res.Status)
	assert.NotEmpty(t, res.CallID)
	assert.Empty(t, res.Step)
}

func TestSyncCommand_FailureExitCodes(t *testing.T) {
	tests := []struct {
		name string
		edit func(*config.Config)
		args []string
		want errclass.Status
	}{
		{
			name: "transfer rejected",
			edit: func(c *config.Config) { c.Transfer = config.TransferReject },
			want: errclass.StatusSync,
		},
		{
			name: "missing p4 executable",
			edit: func(c *config.Config) {
				c.Backend = model.BackendP4
				c.P4.Executable = "p4-does-not-exist-anywhere"
			},
			want: errclass.StatusInitialization,
		},
		{
			name: "bad revision flag",
			args: []string{"--revision", "head"},
			want: errclass.StatusConfigInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.edit)

			cmd := createTestRootCmd()
			stdout, err := executeCommand(cmd, append([]string{"--config", path, "--json", "sync"}, tt.args...)...)
			assert.Equal(t, int(tt.want), exitCode(t, err))

			var res syncResult
			require.NoError(t, json.Unmarshal([]byte(stdout), &res))
			assert.Equal(t, "failure", res.Result)
			assert.Equal(t, int(tt.want), res.Status)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestSyncCommand_InvalidConfig(t *testing.T) {
	path := writeConfig(t, func(c *config.Config) { c.Policy = "sometimes" })

	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "--config", path, "sync")
	require.Error(t, err)
	assert.Equal(t, errclass.StatusConfigInvalid, errclass.StatusOf(err))
}

func TestOverlay(t *testing.T) {
	base := model.SyncRequest{Server: "perforce:1666", User: "alice", Client: "ws", Password: "pw"}
	got := overlay(base, model.SyncRequest{Client: "other", Revision: "@42"})

	assert.Equal(t, "perforce:1666", got.Server)
	assert.Equal(t, "alice", got.User)
	assert.Equal(t, "other", got.Client)
	assert.Equal(t, "@42", got.Revision)
	assert.Equal(t, "pw", got.Password)
}

func TestDoctorCommand_Healthy(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "journal.jsonl")
	path := writeConfig(t, func(c *config.Config) { c.Audit.Path = journal })

	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "--config", path, "sync")
	require.NoError(t, err)

	cmd = createTestRootCmd()
	stdout, err := executeCommand(cmd, "--config", path, "--json", "doctor")
	require.NoError(t, err)

	var res doctorResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.True(t, res.Healthy)
	require.Len(t, res.Checks, 3)
	assert.Equal(t, "journal", res.Checks[2].Name)
	assert.True(t, res.Checks[2].OK)
}

func TestDoctorCommand_RuntimeFailure(t *testing.T) {
	path := writeConfig(t, func(c *config.Config) {
		c.Backend = model.BackendP4
		c.P4.Executable = "p4-does-not-exist-anywhere"
	})

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--config", path, "doctor")
	assert.Equal(t, int(errclass.StatusInitialization), exitCode(t, err))
	assert.Contains(t, stdout, "[FAIL] runtime")
	assert.NotContains(t, stdout, "healthy")
}

func TestDoctorCommand_BrokenJournal(t *testing.T) {
	journal := filepath.Join(t.TempDir(), "journal.jsonl")
	require.NoError(t, os.WriteFile(journal, []byte("not json\n"), 0644))
	path := writeConfig(t, func(c *config.Config) { c.Audit.Path = journal })

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--config", path, "doctor")
	assert.Equal(t, int(errclass.StatusInternal), exitCode(t, err))
	assert.Contains(t, stdout, "[FAIL] journal")
}

type recordingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordingSink) Write(c hostlog.Category, level hostlog.Level, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, c.Subsystem+"/"+c.Name+"|"+level.String()+"|"+msg)
}

func TestLogCommand(t *testing.T) {
	sink := &recordingSink{}
	orig := newSink
	newSink = func(*logging.Logger) hostlog.Sink { return sink }
	t.Cleanup(func() { newSink = orig })

	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "log", "--category", "ui", "--level", "error", "disk", "full")
	require.NoError(t, err)
	assert.Equal(t, []string{hostlog.DefaultSubsystem + "/ui|error|disk full"}, sink.lines)

	cmd = createTestRootCmd()
	_, err = executeCommand(cmd, "log", "--level", "loud", "hello")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestConfigCommands(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "--config", path, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", stdout)

	cmd = createTestRootCmd()
	_, err = executeCommand(cmd, "--config", path, "config", "init")
	require.NoError(t, err)
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)

	cmd = createTestRootCmd()
	_, err = executeCommand(cmd, "--config", path, "config", "init")
	assert.ErrorContains(t, err, "already exists")

	cmd = createTestRootCmd()
	_, err = executeCommand(cmd, "--config", path, "config", "init", "--force")
	require.NoError(t, err)

	cmd = createTestRootCmd()
	stdout, err = executeCommand(cmd, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "backend: p4")
	assert.Contains(t, stdout, "policy: serialize")

	cmd = createTestRootCmd()
	stdout, err = executeCommand(cmd, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, stdout, "is valid")
}

func TestConfigValidate_Rejects(t *testing.T) {
	path := writeConfig(t, func(c *config.Config) { c.Transfer = "rsync" })

	cmd := createTestRootCmd()
	_, err := executeCommand(cmd, "--config", path, "config", "validate")
	require.Error(t, err)
	assert.Equal(t, errclass.StatusConfigInvalid, errclass.StatusOf(err))
}

func TestCompletionCommand(t *testing.T) {
	cmd := createTestRootCmd()
	stdout, err := executeCommand(cmd, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, stdout, "syncbridge")

	cmd = createTestRootCmd()
	_, err = executeCommand(cmd, "completion", "tcsh")
	assert.Error(t, err)
}
