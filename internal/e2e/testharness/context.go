// Package testharness wires end-to-end tests to a real copilot CLI and,
// when configured, to a recording proxy that replays model traffic so runs
// are deterministic and free.
package testharness

import (
	"os"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-resty/resty/v2"

	copilot "github.com/armatrix/copilot-sdk-go"
)

// Config is read from the environment.
type Config struct {
	// CLIPath is the copilot binary under test. Unset skips the suite.
	CLIPath string `env:"COPILOT_CLI_PATH"`
	// ProxyURL is the control endpoint of the replay proxy. Empty means
	// tests talk to the live service.
	ProxyURL string `env:"COPILOT_PROXY_URL"`
	// Model pins the model for all test sessions.
	Model string `env:"COPILOT_TEST_MODEL" envDefault:"claude-haiku-4.5"`
	// LogLevel for the spawned CLI.
	LogLevel string `env:"COPILOT_TEST_LOG_LEVEL" envDefault:"error"`
	// CI toggles the longer timeouts shared runners need.
	CI bool `env:"CI"`
}

// Timeout returns the per-turn deadline appropriate for the environment.
func (c Config) Timeout() time.Duration {
	if c.CI {
		return 120 * time.Second
	}
	return 60 * time.Second
}

// TestContext carries everything an e2e test needs.
type TestContext struct {
	Config  Config
	WorkDir string

	proxy *resty.Client
}

// NewTestContext parses the environment and skips the test when no CLI is
// configured, so the suite is a no-op in unit-test runs.
func NewTestContext(t *testing.T) *TestContext {
	t.Helper()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse e2e environment: %v", err)
	}
	if cfg.CLIPath == "" {
		t.Skip("COPILOT_CLI_PATH not set; skipping e2e test")
	}

	ctx := &TestContext{
		Config:  cfg,
		WorkDir: t.TempDir(),
	}
	if cfg.ProxyURL != "" {
		ctx.proxy = resty.New().
			SetBaseURL(cfg.ProxyURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2)
	}
	return ctx
}

// NewClient builds a client that spawns the CLI under test, working in the
// test's scratch directory.
func (tc *TestContext) NewClient() *copilot.Client {
	return copilot.NewClient(&copilot.ClientOptions{
		CLIPath:     tc.Config.CLIPath,
		Cwd:         tc.WorkDir,
		LogLevel:    tc.Config.LogLevel,
		GithubToken: os.Getenv("GITHUB_TOKEN"),
	})
}

// ConfigureForTest points the replay proxy at the recording for the
// current (sub)test. Without a proxy this is a no-op.
func (tc *TestContext) ConfigureForTest(t *testing.T) {
	t.Helper()
	if tc.proxy == nil {
		return
	}
	resp, err := tc.proxy.R().
		SetBody(map[string]string{"test": t.Name()}).
		Post("/recordings/select")
	if err != nil {
		t.Fatalf("configure replay proxy: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("configure replay proxy: %s: %s", resp.Status(), resp.Body())
	}
}

// SessionConfig returns a config pinned to the test model.
func (tc *TestContext) SessionConfig() *copilot.SessionConfig {
	return &copilot.SessionConfig{Model: tc.Config.Model}
}

// RequireProxy skips tests that only make sense against the replay proxy.
func (tc *TestContext) RequireProxy(t *testing.T) {
	t.Helper()
	if tc.proxy == nil {
		t.Skip("COPILOT_PROXY_URL not set; skipping proxy-dependent test")
	}
}
