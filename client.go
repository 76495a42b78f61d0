package copilot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/armatrix/copilot-sdk-go/internal/jsonrpc"
)

// Client manages the connection to a copilot CLI server: spawning (or
// dialing) the process, the JSON-RPC channel on top of it, and the set of
// live sessions. A Client is safe for concurrent use.
type Client struct {
	opts resolved
	log  zerolog.Logger

	mu       sync.Mutex
	state    ConnectionState
	conn     *jsonrpc.Conn
	cmd      *exec.Cmd
	sessions map[string]*Session
	stopping bool
}

// NewClient builds a Client. Pass nil options to spawn `copilot` from PATH
// over stdio. The client does not touch the process or network until Start.
func NewClient(opts *ClientOptions) *Client {
	r := resolveOptions(opts)
	return &Client{
		opts:     r,
		log:      r.log.With().Str("component", "copilot-client").Logger(),
		state:    StateDisconnected,
		sessions: make(map[string]*Session),
	}
}

// GetState reports the current connection state.
func (c *Client) GetState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type initializeParams struct {
	SDKProtocolVersion int `json:"sdkProtocolVersion"`
}

type initializeResult struct {
	ProtocolVersion int    `json:"protocolVersion"`
	Version         string `json:"version,omitempty"`
}

// Start connects to the CLI: spawns it (or dials CLIUrl), wires the RPC
// channel, and performs the protocol handshake. Returns ErrAlreadyConnected
// if the client is already started.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.stopping = false
	c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		c.setState(StateError)
		return err
	}
	c.setState(StateConnected)
	return nil
}

func (c *Client) connect(ctx context.Context) error {
	var (
		rw  io.ReadWriter
		cmd *exec.Cmd
		err error
	)
	switch {
	case c.opts.cliURL != "":
		rw, err = c.dial(ctx, hostPort(c.opts.cliURL))
	case c.opts.useStdio:
		rw, cmd, err = c.spawnStdio()
	default:
		rw, cmd, err = c.spawnTCP(ctx)
	}
	if err != nil {
		return err
	}

	conn := c.bind(rw)

	var res initializeResult
	initCtx, cancel := context.WithTimeout(ctx, DefaultStopTimeout)
	err = conn.Call(initCtx, "initialize", initializeParams{SDKProtocolVersion: SDKProtocolVersion}, &res)
	cancel()
	if err != nil {
		conn.Close()
		if cmd != nil && cmd.Process != nil {
			cmd.Process.Kill()
		}
		return fmt.Errorf("initialize handshake: %w", err)
	}
	c.log.Debug().
		Int("protocol_version", res.ProtocolVersion).
		Str("cli_version", res.Version).
		Msg("connected")

	c.mu.Lock()
	c.conn = conn
	c.cmd = cmd
	c.mu.Unlock()

	go c.monitor(conn, cmd)
	return nil
}

// bind wires the RPC handlers onto a fresh connection and starts its read
// loop.
func (c *Client) bind(rw io.ReadWriter) *jsonrpc.Conn {
	conn := jsonrpc.NewConn(rw, c.log)
	conn.HandleNotification(c.onNotification)
	conn.HandleRequest("tool/execute", c.onToolExecute)
	conn.HandleRequest("permission/request", c.onPermissionRequest)
	conn.HandleRequest("userInput/request", c.onUserInputRequest)
	conn.HandleRequest("hook/invoke", c.onHookInvoke)
	conn.Start()
	return conn
}

// command builds the `copilot serve` invocation.
func (c *Client) command(extraArgs ...string) *exec.Cmd {
	args := append([]string{"serve", "--log-level", c.opts.logLevel}, extraArgs...)
	cmd := exec.Command(c.opts.cliPath, args...)
	cmd.Dir = c.opts.cwd
	cmd.Env = c.opts.environ()
	configureProcAttr(cmd)
	return cmd
}

// stdioPipe joins the child's stdin and stdout into one ReadWriteCloser.
type stdioPipe struct {
	io.Reader
	io.WriteCloser
}

func (p stdioPipe) Close() error { return p.WriteCloser.Close() }

func (c *Client) spawnStdio() (io.ReadWriter, *exec.Cmd, error) {
	cmd := c.command()
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("spawn %s: %w", c.opts.cliPath, err)
	}
	go c.forwardLogs(stderr)
	return stdioPipe{Reader: stdout, WriteCloser: stdin}, cmd, nil
}

var listeningRe = regexp.MustCompile(`listening on port (\d+)`)

func (c *Client) spawnTCP(ctx context.Context) (io.ReadWriter, *exec.Cmd, error) {
	port := 0
	if c.opts.port != nil {
		port = *c.opts.port
	}
	cmd := c.command("--port", strconv.Itoa(port))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("open stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("spawn %s: %w", c.opts.cliPath, err)
	}
	go c.forwardLogs(stderr)

	portCh := make(chan int, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if m := listeningRe.FindStringSubmatch(line); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					select {
					case portCh <- n:
					default:
					}
				}
			}
			c.log.Debug().Str("stream", "stdout").Msg(line)
		}
	}()

	select {
	case got := <-portCh:
		port = got
	case <-time.After(DefaultStopTimeout):
		cmd.Process.Kill()
		return nil, nil, fmt.Errorf("timed out waiting for %s to report its port", c.opts.cliPath)
	case <-ctx.Done():
		cmd.Process.Kill()
		return nil, nil, ctx.Err()
	}

	conn, err := c.dial(ctx, net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		cmd.Process.Kill()
		return nil, nil, err
	}
	return conn, cmd, nil
}

// dial connects to addr with exponential backoff so a just-started server
// has time to open its listener.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	var conn net.Conn
	backoff := retry.WithMaxRetries(connectAttempts, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var d net.Dialer
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return retry.RetryableError(err)
		}
		conn = nc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

// hostPort normalizes a CLIUrl ("host:port", "tcp://...", "http://...")
// to a dialable address.
func hostPort(url string) string {
	for _, prefix := range []string{"tcp://", "http://", "https://"} {
		if rest, ok := strings.CutPrefix(url, prefix); ok {
			return strings.TrimSuffix(rest, "/")
		}
	}
	return url
}

// forwardLogs relays the CLI's stderr into the client logger.
func (c *Client) forwardLogs(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.log.Debug().Str("stream", "stderr").Msg(scanner.Text())
	}
}

// monitor watches the connection and process. On an unexpected exit it
// either restarts the CLI (AutoRestart) or parks the client in the error
// state. Live sessions do not survive; resume them after reconnecting.
func (c *Client) monitor(conn *jsonrpc.Conn, cmd *exec.Cmd) {
	<-conn.Done()
	if cmd != nil {
		cmd.Wait()
	}

	c.mu.Lock()
	current := c.conn == conn
	stopping := c.stopping
	if current {
		c.conn = nil
		c.cmd = nil
		c.sessions = make(map[string]*Session)
	}
	restart := current && !stopping && c.opts.autoRestart
	if current && !stopping {
		c.state = StateError
	}
	c.mu.Unlock()

	if !current || stopping {
		return
	}
	c.log.Warn().Msg("cli connection lost")

	if restart {
		c.setState(StateConnecting)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.connect(ctx); err != nil {
			c.log.Error().Err(err).Msg("auto-restart failed")
			c.setState(StateError)
			return
		}
		c.setState(StateConnected)
		c.log.Info().Msg("cli restarted")
	}
}

// Stop disconnects from the CLI, giving the spawned process a grace period
// to exit before it is killed. Safe to call multiple times.
func (c *Client) Stop() error {
	return c.stop(DefaultStopTimeout)
}

// ForceStop kills the spawned CLI immediately without a grace period.
func (c *Client) ForceStop() error {
	return c.stop(0)
}

func (c *Client) stop(grace time.Duration) error {
	c.mu.Lock()
	c.stopping = true
	conn := c.conn
	cmd := c.cmd
	c.conn = nil
	c.cmd = nil
	c.sessions = make(map[string]*Session)
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if grace > 0 {
		done := make(chan struct{})
		go func() {
			cmd.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-time.After(grace):
		}
	}
	cmd.Process.Kill()
	cmd.Wait()
	return nil
}

func (c *Client) setState(s ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// call routes a request through the active connection, starting the CLI
// first when AutoStart is set.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if conn == nil && state == StateDisconnected && c.opts.autoStart {
		if err := c.Start(ctx); err != nil && !errors.Is(err, ErrAlreadyConnected) {
			return err
		}
		c.mu.Lock()
		conn = c.conn
		state = c.state
		c.mu.Unlock()
	}

	if conn == nil {
		if state == StateError {
			return ErrCLIExited
		}
		return ErrNotConnected
	}
	return conn.Call(ctx, method, params, result)
}

// toolDescriptor is the wire shape of a registered tool (handler omitted).
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func describeTools(tools []Tool) []toolDescriptor {
	if len(tools) == 0 {
		return nil
	}
	descs := make([]toolDescriptor, len(tools))
	for i, t := range tools {
		descs[i] = toolDescriptor{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}
	return descs
}

type createSessionParams struct {
	*SessionConfig
	Tools []toolDescriptor `json:"tools,omitempty"`
	Hooks []string         `json:"hooks,omitempty"`
}

type sessionIDResult struct {
	SessionID string `json:"sessionId"`
}

// CreateSession starts a new session on the CLI. A nil config uses the
// CLI's defaults.
func (c *Client) CreateSession(ctx context.Context, config *SessionConfig) (*Session, error) {
	if config == nil {
		config = &SessionConfig{}
	}
	params := createSessionParams{
		SessionConfig: config,
		Tools:         describeTools(config.Tools),
		Hooks:         config.Hooks.hookNames(),
	}

	var res sessionIDResult
	if err := c.call(ctx, "session.create", params, &res); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if res.SessionID == "" {
		return nil, ErrNoSessionID
	}

	s := newSession(c, res.SessionID, config.Tools, config.OnPermissionRequest, config.OnUserInputRequest, config.Hooks)
	c.rememberSession(s)
	return s, nil
}

type resumeSessionParams struct {
	SessionID string `json:"sessionId"`
	*ResumeSessionConfig
	Tools []toolDescriptor `json:"tools,omitempty"`
	Hooks []string         `json:"hooks,omitempty"`
}

// ResumeSession picks up a persisted session by ID with default options.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) (*Session, error) {
	return c.ResumeSessionWithOptions(ctx, sessionID, nil)
}

// ResumeSessionWithOptions picks up a persisted session by ID. Tools,
// providers, and callbacks are not persisted with the session and must be
// supplied again here.
func (c *Client) ResumeSessionWithOptions(ctx context.Context, sessionID string, config *ResumeSessionConfig) (*Session, error) {
	if config == nil {
		config = &ResumeSessionConfig{}
	}
	params := resumeSessionParams{
		SessionID:           sessionID,
		ResumeSessionConfig: config,
		Tools:               describeTools(config.Tools),
		Hooks:               config.Hooks.hookNames(),
	}

	var res sessionIDResult
	if err := c.call(ctx, "session.resume", params, &res); err != nil {
		return nil, fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	id := res.SessionID
	if id == "" {
		id = sessionID
	}

	s := newSession(c, id, config.Tools, config.OnPermissionRequest, config.OnUserInputRequest, config.Hooks)
	c.rememberSession(s)
	return s, nil
}

type listSessionsResult struct {
	Sessions []SessionMetadata `json:"sessions"`
}

// ListSessions returns metadata for all persisted sessions.
func (c *Client) ListSessions(ctx context.Context) ([]SessionMetadata, error) {
	var res listSessionsResult
	if err := c.call(ctx, "session.list", nil, &res); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return res.Sessions, nil
}

// DeleteSession removes a persisted session from the CLI's storage.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.call(ctx, "session.delete", sessionRefParams{SessionID: sessionID}, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	c.forgetSession(sessionID)
	return nil
}

type pingParams struct {
	Message string `json:"message,omitempty"`
}

// Ping round-trips a message through the CLI.
func (c *Client) Ping(ctx context.Context, message string) (*PingResponse, error) {
	var res PingResponse
	if err := c.call(ctx, "ping", pingParams{Message: message}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) rememberSession(s *Session) {
	c.mu.Lock()
	c.sessions[s.SessionID] = s
	c.mu.Unlock()
}

func (c *Client) forgetSession(id string) {
	c.mu.Lock()
	delete(c.sessions, id)
	c.mu.Unlock()
}

func (c *Client) session(id string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

type sessionEventParams struct {
	SessionID string       `json:"sessionId"`
	Event     SessionEvent `json:"event"`
}

// onNotification routes session/event notifications to the owning session.
func (c *Client) onNotification(method string, params json.RawMessage) {
	if method != "session/event" {
		c.log.Debug().Str("method", method).Msg("unhandled notification")
		return
	}
	var p sessionEventParams
	if err := json.Unmarshal(params, &p); err != nil {
		c.log.Warn().Err(err).Msg("malformed session event")
		return
	}
	s := c.session(p.SessionID)
	if s == nil {
		c.log.Debug().Str("session_id", p.SessionID).Msg("event for unknown session")
		return
	}
	s.dispatch(p.Event)
}

func (c *Client) onToolExecute(_ context.Context, params json.RawMessage) (any, error) {
	var inv ToolInvocation
	if err := json.Unmarshal(params, &inv); err != nil {
		return nil, fmt.Errorf("malformed tool/execute params: %w", err)
	}
	s := c.session(inv.SessionID)
	if s == nil {
		return unsupportedResult(inv.ToolName), nil
	}
	return s.handleToolCall(inv), nil
}

func (c *Client) onPermissionRequest(_ context.Context, params json.RawMessage) (any, error) {
	// The request fields arrive flat alongside sessionId, so the params
	// decode twice: once for routing, once as the request itself.
	var route struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(params, &route); err != nil {
		return nil, fmt.Errorf("malformed permission/request params: %w", err)
	}
	var req PermissionRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("malformed permission/request params: %w", err)
	}
	s := c.session(route.SessionID)
	if s == nil {
		return PermissionRequestResult{Kind: "denied-interactively-by-user"}, nil
	}
	return s.handlePermission(req)
}

type userInputParams struct {
	SessionID string `json:"sessionId"`
	UserInputRequest
}

func (c *Client) onUserInputRequest(_ context.Context, params json.RawMessage) (any, error) {
	var p userInputParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed userInput/request params: %w", err)
	}
	s := c.session(p.SessionID)
	if s == nil {
		return nil, fmt.Errorf("user input request for unknown session %s", p.SessionID)
	}
	return s.handleUserInput(p.UserInputRequest)
}

type hookInvokeParams struct {
	SessionID string          `json:"sessionId"`
	HookType  string          `json:"hookType"`
	Input     json.RawMessage `json:"input"`
}

type hookInvokeResult struct {
	Output any `json:"output"`
}

func (c *Client) onHookInvoke(_ context.Context, params json.RawMessage) (any, error) {
	var p hookInvokeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("malformed hook/invoke params: %w", err)
	}
	s := c.session(p.SessionID)
	if s == nil {
		return hookInvokeResult{}, nil
	}
	out, err := s.handleHook(p.HookType, p.Input)
	if err != nil {
		return nil, err
	}
	return hookInvokeResult{Output: out}, nil
}
