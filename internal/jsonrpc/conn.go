package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrClosed is returned for calls issued on (or interrupted by) a closed
// connection.
var ErrClosed = errors.New("jsonrpc: connection closed")

// NotificationHandler receives server notifications (messages with a method
// but no id). It runs on the read loop goroutine and must not block.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler serves a server->client request. The returned value is
// marshaled as the response result; a returned *Error is sent verbatim,
// any other error becomes an internal error response.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Conn is a bidirectional JSON-RPC 2.0 connection over a byte stream.
type Conn struct {
	log zerolog.Logger

	reader *bufio.Reader
	closer io.Closer

	writeMu sync.Mutex
	writer  io.Writer

	mu       sync.Mutex
	pending  map[string]chan *Response
	handlers map[string]RequestHandler
	notify   NotificationHandler
	closed   bool

	done chan struct{}
}

// NewConn wraps rw in a Conn. If rw implements io.Closer, Close will close it.
// The read loop does not start until Start is called, so handlers can be
// registered without racing incoming traffic.
func NewConn(rw io.ReadWriter, log zerolog.Logger) *Conn {
	c := &Conn{
		log:      log,
		reader:   bufio.NewReader(rw),
		writer:   rw,
		pending:  make(map[string]chan *Response),
		handlers: make(map[string]RequestHandler),
		done:     make(chan struct{}),
	}
	if closer, ok := rw.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// HandleNotification sets the handler for incoming notifications.
func (c *Conn) HandleNotification(fn NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = fn
}

// HandleRequest registers a handler for incoming server->client requests.
func (c *Conn) HandleRequest(method string, fn RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = fn
}

// Start launches the read loop. Call at most once.
func (c *Conn) Start() {
	go c.readLoop()
}

// Done is closed when the read loop exits (EOF, read error, or Close).
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close tears down the connection and fails all pending calls with ErrClosed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan *Response)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// Call sends a request and decodes the result into result (which may be nil
// when the caller does not care about the payload).
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	id := uuid.NewString()
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := Request{JSONRPC: Version, ID: json.RawMessage(strconv.Quote(id)), Method: method, Params: raw}
	c.log.Trace().Str("method", method).Str("id", id).Msg("rpc request")

	if err := c.write(&req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Notify sends a notification (no response expected).
func (c *Conn) Notify(method string, params any) error {
	raw, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", method, err)
	}
	return c.write(&Request{JSONRPC: Version, Method: method, Params: raw})
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return json.Marshal(params)
}

// write frames and sends a single message.
func (c *Conn) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		body, err := c.readFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.isClosed() {
				c.log.Debug().Err(err).Msg("rpc read loop terminated")
			}
			c.failPending()
			return
		}
		c.handleMessage(body)
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) failPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan *Response)
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// readFrame reads one Content-Length framed message body.
func (c *Conn) readFrame() ([]byte, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // end of headers
		}
		if v, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("bad Content-Length %q: %w", v, err)
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, errors.New("missing Content-Length header")
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, err
	}
	return body, nil
}

// handleMessage classifies an incoming message as a response, a request, or
// a notification and dispatches it.
func (c *Conn) handleMessage(body []byte) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		c.log.Debug().Err(err).Msg("rpc dropped unparseable message")
		return
	}
	hasID := len(probe.ID) > 0 && string(probe.ID) != "null"

	switch {
	case probe.Method == "" && hasID:
		// Our own request ids are always strings; anything else cannot
		// match a pending call.
		var id string
		if err := json.Unmarshal(probe.ID, &id); err != nil {
			return
		}
		var resp Response
		if err := json.Unmarshal(body, &resp); err != nil {
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ok {
			ch <- &resp
		}

	case probe.Method != "" && hasID:
		c.mu.Lock()
		handler := c.handlers[probe.Method]
		c.mu.Unlock()
		// Reverse requests can be slow (they wait on user callbacks), so
		// serve each one off the read loop.
		go c.serveRequest(probe.Method, probe.ID, probe.Params, handler)

	case probe.Method != "" && !hasID:
		c.mu.Lock()
		notify := c.notify
		c.mu.Unlock()
		c.log.Trace().Str("method", probe.Method).Msg("rpc notification")
		if notify != nil {
			notify(probe.Method, probe.Params)
		}
	}
}

func (c *Conn) serveRequest(method string, id json.RawMessage, params json.RawMessage, handler RequestHandler) {
	resp := Response{JSONRPC: Version, ID: id}

	if handler == nil {
		resp.Error = NewError(CodeMethodNotFound, "method not found: "+method)
	} else {
		result, err := handler(context.Background(), params)
		switch {
		case err != nil:
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				resp.Error = rpcErr
			} else {
				resp.Error = NewError(CodeInternalError, err.Error())
			}
		default:
			raw, err := json.Marshal(result)
			if err != nil {
				resp.Error = NewError(CodeInternalError, "marshal result: "+err.Error())
			} else {
				resp.Result = raw
			}
		}
	}

	if err := c.write(&resp); err != nil && !c.isClosed() {
		c.log.Debug().Err(err).Str("method", method).Msg("rpc failed to send response")
	}
}
