// Package config provides configuration file support for the bridge.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/jvs-project/syncbridge/pkg/errclass"
	"github.com/jvs-project/syncbridge/pkg/logging"
	"github.com/jvs-project/syncbridge/pkg/model"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "SYNCBRIDGE_CONFIG"

// relPath is the config location under the XDG config directories.
const relPath = "syncbridge/config.yaml"

// Transfer modes.
const (
	TransferNoop   = "noop"
	TransferReject = "reject"
)

// Config represents the bridge configuration.
type Config struct {
	Backend  model.BackendType `yaml:"backend"`
	Policy   model.Policy      `yaml:"policy"`
	Transfer string            `yaml:"transfer"`
	Timeouts TimeoutsConfig    `yaml:"timeouts"`
	P4       P4Config          `yaml:"p4"`
	Git      GitConfig         `yaml:"git"`
	Logging  LoggingConfig     `yaml:"logging"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	Audit    AuditConfig       `yaml:"audit"`
	Webhooks WebhooksConfig    `yaml:"webhooks"`
}

// TimeoutsConfig bounds the network-facing steps. Empty or "0" disables a bound.
type TimeoutsConfig struct {
	SessionOpen string `yaml:"session_open"`
	Sync        string `yaml:"sync"`
}

// P4Config configures the Perforce backend.
type P4Config struct {
	Executable  string `yaml:"executable"`
	Port        string `yaml:"port"`
	User        string `yaml:"user"`
	Client      string `yaml:"client"`
	Stream      string `yaml:"stream"`
	Root        string `yaml:"root"`
	PasswordEnv string `yaml:"password_env"`
}

// GitConfig configures the git backend.
type GitConfig struct {
	URL             string `yaml:"url"`
	Username        string `yaml:"username"`
	TokenEnv        string `yaml:"token_env"`
	InsecureSkipTLS bool   `yaml:"insecure_skip_tls"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AuditConfig configures the lifecycle journal. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// WebhooksConfig configures outbound notifications.
type WebhooksConfig struct {
	Enabled    bool         `yaml:"enabled"`
	MaxRetries int          `yaml:"max_retries"`
	RetryDelay string       `yaml:"retry_delay"`
	QueueSize  int          `yaml:"queue_size"`
	Hooks      []HookConfig `yaml:"hooks"`
}

// HookConfig is one webhook endpoint.
type HookConfig struct {
	URL       string   `yaml:"url"`
	SecretEnv string   `yaml:"secret_env"`
	Events    []string `yaml:"events"`
	Timeout   string   `yaml:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend:  model.BackendP4,
		Policy:   model.PolicySerialize,
		Transfer: TransferNoop,
		Timeouts: TimeoutsConfig{
			SessionOpen: "30s",
			Sync:        "10m",
		},
		P4: P4Config{
			Executable:  "p4",
			PasswordEnv: "P4PASSWD",
		},
		Git: GitConfig{
			TokenEnv: "SYNCBRIDGE_GIT_TOKEN",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":2112",
		},
		Webhooks: WebhooksConfig{
			MaxRetries: 3,
			RetryDelay: "5s",
			QueueSize:  100,
		},
	}
}

// Resolve picks the config file path: explicit if set, else
// $SYNCBRIDGE_CONFIG, else the first existing syncbridge/config.yaml in the
// XDG config directories, else the path under $XDG_CONFIG_HOME where one
// would be created.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if p, err := xdg.SearchConfigFile(relPath); err == nil {
		return p
	}
	return filepath.Join(xdg.ConfigHome, relPath)
}

// Load loads configuration from path.
// Returns default config if file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errclass.ErrConfigInvalid.Wrap(err, "parse config")
	}
	return cfg, nil
}

// Save writes configuration to path, replacing any existing file atomically.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".syncbridge-config-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ApplyEnv overlays the standard Perforce environment variables on the p4
// section. Only variables that are set take effect.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("P4PORT"); v != "" {
		c.P4.Port = v
	}
	if v := getenv("P4USER"); v != "" {
		c.P4.User = v
	}
	if v := getenv("P4CLIENT"); v != "" {
		c.P4.Client = v
	}
}

// Validate checks every enumerated and duration field.
func (c *Config) Validate() error {
	switch c.Backend {
	case model.BackendP4, model.BackendGit, model.BackendNoop:
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown backend %q", c.Backend)
	}
	switch c.Policy {
	case model.PolicySerialize, model.PolicyPooled:
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown policy %q", c.Policy)
	}
	switch c.Transfer {
	case TransferNoop, TransferReject:
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown transfer mode %q", c.Transfer)
	}
	if _, err := c.TimeoutValues(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errclass.ErrConfigInvalid.Wrap(err, "logging.level")
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return errclass.ErrConfigInvalid.Wrap(err, "logging.format")
	}
	if c.Backend == model.BackendGit && c.Git.URL == "" {
		return errclass.ErrConfigInvalid.WithMessage("git.url is required for the git backend")
	}
	if c.Backend == model.BackendP4 && c.P4.Executable == "" {
		return errclass.ErrConfigInvalid.WithMessage("p4.executable must not be empty")
	}
	if _, err := parseDuration("webhooks.retry_delay", c.Webhooks.RetryDelay); err != nil {
		return err
	}
	for i, h := range c.Webhooks.Hooks {
		if h.URL == "" {
			return errclass.ErrConfigInvalid.WithMessagef("webhooks.hooks[%d].url is required", i)
		}
		if _, err := parseDuration(fmt.Sprintf("webhooks.hooks[%d].timeout", i), h.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// TimeoutValues parses the timeouts section.
func (c *Config) TimeoutValues() (model.Timeouts, error) {
	open, err := parseDuration("timeouts.session_open", c.Timeouts.SessionOpen)
	if err != nil {
		return model.Timeouts{}, err
	}
	sync, err := parseDuration("timeouts.sync", c.Timeouts.Sync)
	if err != nil {
		return model.Timeouts{}, err
	}
	return model.Timeouts{SessionOpen: open, Sync: sync}, nil
}

// Request builds the default sync request for the configured backend. The
// password or token is read from the environment variable the config names.
func (c *Config) Request(getenv func(string) string) model.SyncRequest {
	if getenv == nil {
		getenv = os.Getenv
	}
	switch c.Backend {
	case model.BackendGit:
		req := model.SyncRequest{Server: c.Git.URL, User: c.Git.Username}
		if c.Git.TokenEnv != "" {
			req.Password = getenv(c.Git.TokenEnv)
		}
		return req
	default:
		req := model.SyncRequest{
			Server: c.P4.Port,
			User:   c.P4.User,
			Client: c.P4.Client,
			Stream: c.P4.Stream,
			Root:   c.P4.Root,
		}
		if c.P4.PasswordEnv != "" {
			req.Password = getenv(c.P4.PasswordEnv)
		}
		return req
	}
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errclass.ErrConfigInvalid.Wrap(err, key)
	}
	if d < 0 {
		return 0, errclass.ErrConfigInvalid.WithMessagef("%s must not be negative", key)
	}
	return d, nil
}
