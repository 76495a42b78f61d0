package copilot

import (
	"os"

	"github.com/rs/zerolog"
)

// ConnectionState reports where the client is in its lifecycle.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

// ClientOptions configures a Client. The zero value (or nil) spawns the
// `copilot` binary from PATH over stdio.
type ClientOptions struct {
	// CLIPath is the copilot binary to spawn (default "copilot" on PATH).
	CLIPath string
	// CLIUrl connects to an already-running server ("host:port" or a full
	// URL) instead of spawning. Mutually exclusive with CLIPath and Port.
	CLIUrl string
	// Cwd is the working directory for the spawned CLI.
	Cwd string
	// Port makes the spawned CLI listen on TCP instead of stdio. 0 picks a
	// free port, discovered from the CLI's startup output.
	Port *int
	// UseStdio selects stdio transport for the spawned CLI (default true).
	// Set to false together with Port for TCP.
	UseStdio *bool
	// LogLevel passed to the CLI ("none", "error", "warning", "info",
	// "debug", "all"; default "error").
	LogLevel string
	// AutoStart spawns the CLI lazily on the first call instead of
	// requiring an explicit Start.
	AutoStart bool
	// AutoRestart respawns the CLI if it exits unexpectedly. Sessions do
	// not survive a restart and must be resumed.
	AutoRestart bool
	// GithubToken is forwarded to the CLI for authentication.
	GithubToken string
	// Env adds environment variables for the spawned CLI on top of the
	// current process environment.
	Env map[string]string
	// Logger receives client and CLI stderr logs. Defaults to a disabled
	// logger.
	Logger *zerolog.Logger
}

// resolved is the options struct after defaults are applied.
type resolved struct {
	cliPath     string
	cliURL      string
	cwd         string
	port        *int
	useStdio    bool
	logLevel    string
	autoStart   bool
	autoRestart bool
	githubToken string
	env         map[string]string
	log         zerolog.Logger
}

func resolveOptions(opts *ClientOptions) resolved {
	if opts == nil {
		opts = &ClientOptions{}
	}
	r := resolved{
		cliPath:     opts.CLIPath,
		cliURL:      opts.CLIUrl,
		cwd:         opts.Cwd,
		port:        opts.Port,
		useStdio:    true,
		logLevel:    opts.LogLevel,
		autoStart:   opts.AutoStart,
		autoRestart: opts.AutoRestart,
		githubToken: opts.GithubToken,
		env:         opts.Env,
		log:         zerolog.Nop(),
	}
	if r.cliPath == "" {
		r.cliPath = DefaultCLIPath
	}
	if r.logLevel == "" {
		r.logLevel = DefaultLogLevel
	}
	if opts.UseStdio != nil {
		r.useStdio = *opts.UseStdio
	}
	if r.port != nil {
		r.useStdio = false
	}
	if opts.Logger != nil {
		r.log = *opts.Logger
	}
	return r
}

// environ merges the process environment with the configured overrides.
func (r resolved) environ() []string {
	env := os.Environ()
	if r.githubToken != "" {
		env = append(env, "GITHUB_TOKEN="+r.githubToken)
	}
	for k, v := range r.env {
		env = append(env, k+"="+v)
	}
	return env
}
