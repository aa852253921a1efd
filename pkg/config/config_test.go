package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/model"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Backend != model.BackendP4 {
		t.Errorf("expected p4 backend, got %s", cfg.Backend)
	}
	if cfg.Policy != model.PolicySerialize {
		t.Errorf("expected serialize policy, got %s", cfg.Policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Transfer != TransferNoop {
		t.Errorf("expected default transfer, got %s", cfg.Transfer)
	}
}

func TestLoad_Exists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend: git
policy: pooled
timeouts:
  session_open: 5s
git:
  url: https://example.com/repo.git
  username: ci
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Backend != model.BackendGit || cfg.Policy != model.PolicyPooled {
		t.Errorf("unexpected backend/policy: %s/%s", cfg.Backend, cfg.Policy)
	}
	if cfg.Git.URL != "https://example.com/repo.git" {
		t.Errorf("unexpected git url %q", cfg.Git.URL)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Timeouts.Sync != "10m" {
		t.Errorf("expected default sync timeout, got %q", cfg.Timeouts.Sync)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("backend: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if !errors.Is(err, errclass.ErrConfigInvalid) {
		t.Errorf("expected E_CONFIG_INVALID, got %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.P4.Port = "ssl:perforce:1666"
	cfg.Audit.Path = "/var/log/syncbridge.jsonl"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.P4.Port != "ssl:perforce:1666" || loaded.Audit.Path != cfg.Audit.Path {
		t.Errorf("round trip lost values: %+v", loaded)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only config.yaml, found %d entries", len(entries))
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Backend = "svn" }},
		{"policy", func(c *Config) { c.Policy = "sometimes" }},
		{"transfer", func(c *Config) { c.Transfer = "rsync" }},
		{"timeout", func(c *Config) { c.Timeouts.SessionOpen = "soon" }},
		{"negative timeout", func(c *Config) { c.Timeouts.Sync = "-1s" }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"git without url", func(c *Config) { c.Backend = model.BackendGit }},
		{"empty p4 executable", func(c *Config) { c.P4.Executable = "" }},
		{"hook without url", func(c *Config) { c.Webhooks.Hooks = []HookConfig{{}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, errclass.ErrConfigInvalid) {
				t.Errorf("expected E_CONFIG_INVALID, got %v", err)
			}
		})
	}
}

func TestTimeoutValues(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.Sync = "0"

	got, err := cfg.TimeoutValues()
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionOpen != 30*time.Second {
		t.Errorf("session_open = %v", got.SessionOpen)
	}
	if got.Sync != 0 {
		t.Errorf("sync = %v, want unbounded", got.Sync)
	}
}

func TestApplyEnvAndRequest(t *testing.T) {
	env := map[string]string{
		"P4PORT":   "ssl:edge:1666",
		"P4USER":   "builder",
		"P4PASSWD": "hunter2",
	}
	getenv := func(k string) string { return env[k] }

	cfg := Default()
	cfg.P4.Client = "from-file"
	cfg.P4.Stream = "//depot/main"
	cfg.ApplyEnv(getenv)

	req := cfg.Request(getenv)
	if req.Server != "ssl:edge:1666" || req.User != "builder" {
		t.Errorf("env not applied: %+v", req)
	}
	if req.Client != "from-file" {
		t.Errorf("unset P4CLIENT must not override file value, got %q", req.Client)
	}
	if req.Password != "hunter2" {
		t.Error("password not read from P4PASSWD")
	}
}

func TestRequest_Git(t *testing.T) {
	cfg := Default()
	cfg.Backend = model.BackendGit
	cfg.Git.URL = "https://example.com/repo.git"
	cfg.Git.Username = "ci"

	req := cfg.Request(func(k string) string {
		if k == "SYNCBRIDGE_GIT_TOKEN" {
			return "tok"
		}
		return ""
	})
	if req.Server != cfg.Git.URL || req.User != "ci" || req.Password != "tok" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("/explicit.yaml"); got != "/explicit.yaml" {
		t.Errorf("explicit path ignored: %s", got)
	}

	t.Setenv(EnvConfigPath, "/from/env.yaml")
	if got := Resolve(""); got != "/from/env.yaml" {
		t.Errorf("env path ignored: %s", got)
	}
}
