package copilot

import (
	"context"
	"encoding/json"
	"fmt"
)

// Session is a handle to one conversation on the CLI. Obtain it from
// Client.CreateSession or Client.ResumeSession. A Session is safe for
// concurrent use.
type Session struct {
	// SessionID identifies the session on the CLI side.
	SessionID string

	client *Client

	mu           chanLock
	subscribers  map[int]func(SessionEvent)
	nextSub      int
	destroyed    bool
	tools        map[string]Tool
	onPermission PermissionHandlerFunc
	onUserInput  UserInputHandlerFunc
	hooks        *SessionHooks
}

// chanLock is a channel-based mutex so handlers can hold it without
// blocking forever if dispatch re-enters.
type chanLock chan struct{}

func newChanLock() chanLock {
	l := make(chanLock, 1)
	l <- struct{}{}
	return l
}

func (l chanLock) lock()   { <-l }
func (l chanLock) unlock() { l <- struct{}{} }

func newSession(c *Client, id string, tools []Tool, onPermission PermissionHandlerFunc, onUserInput UserInputHandlerFunc, hooks *SessionHooks) *Session {
	s := &Session{
		SessionID:    id,
		client:       c,
		mu:           newChanLock(),
		subscribers:  make(map[int]func(SessionEvent)),
		tools:        make(map[string]Tool, len(tools)),
		onPermission: onPermission,
		onUserInput:  onUserInput,
		hooks:        hooks,
	}
	for _, t := range tools {
		s.tools[t.Name] = t
	}
	return s
}

type sendParams struct {
	SessionID   string       `json:"sessionId"`
	Prompt      string       `json:"prompt"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Mode        string       `json:"mode,omitempty"`
}

type sendResult struct {
	MessageID string `json:"messageId"`
}

// Send delivers a message to the session and returns its message ID without
// waiting for the turn to finish. Track progress via On.
func (s *Session) Send(ctx context.Context, opts MessageOptions) (string, error) {
	if s.isDestroyed() {
		return "", ErrSessionDestroyed
	}
	var res sendResult
	err := s.client.call(ctx, "session.send", sendParams{
		SessionID:   s.SessionID,
		Prompt:      opts.Prompt,
		Attachments: opts.Attachments,
		Mode:        opts.Mode,
	}, &res)
	if err != nil {
		return "", err
	}
	if res.MessageID == "" {
		return "", ErrNoMessageID
	}
	return res.MessageID, nil
}

// SendAndWait delivers a message and blocks until the session goes idle,
// returning the final assistant.message event of the turn (nil when the
// turn produced none). A session.error event fails the call. If ctx has no
// deadline a default timeout applies.
func (s *Session) SendAndWait(ctx context.Context, opts MessageOptions) (*SessionEvent, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSendTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	var last *SessionEvent
	unsubscribe := s.On(func(ev SessionEvent) {
		switch ev.Type {
		case AssistantMessage:
			e := ev
			last = &e
		case SessionError:
			msg := "session error"
			if ev.Data.Message != nil {
				msg = *ev.Data.Message
			}
			select {
			case done <- fmt.Errorf("session %s: %s", s.SessionID, msg):
			default:
			}
		case SessionIdle:
			select {
			case done <- nil:
			default:
			}
		}
	})
	defer unsubscribe()

	if _, err := s.Send(ctx, opts); err != nil {
		return nil, err
	}

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return last, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for session %s to go idle: %w", s.SessionID, ctx.Err())
	}
}

// On subscribes to session events. Handlers run sequentially on the
// client's dispatch goroutine in arrival order. The returned function
// removes the subscription.
func (s *Session) On(handler func(SessionEvent)) func() {
	s.mu.lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = handler
	s.mu.unlock()
	return func() {
		s.mu.lock()
		delete(s.subscribers, id)
		s.mu.unlock()
	}
}

type sessionRefParams struct {
	SessionID string `json:"sessionId"`
}

type getMessagesResult struct {
	Events []SessionEvent `json:"events"`
}

// GetMessages returns the session's persisted event history.
func (s *Session) GetMessages(ctx context.Context) ([]SessionEvent, error) {
	if s.isDestroyed() {
		return nil, ErrSessionDestroyed
	}
	var res getMessagesResult
	if err := s.client.call(ctx, "session.getMessages", sessionRefParams{SessionID: s.SessionID}, &res); err != nil {
		return nil, err
	}
	return res.Events, nil
}

// Abort cancels the in-flight turn, if any. The session stays usable.
func (s *Session) Abort(ctx context.Context) error {
	if s.isDestroyed() {
		return ErrSessionDestroyed
	}
	return s.client.call(ctx, "session.abort", sessionRefParams{SessionID: s.SessionID}, nil)
}

// Destroy releases the session on the CLI and detaches all subscribers.
// The persisted session can be picked up again with ResumeSession.
// Destroy is idempotent and safe to defer.
func (s *Session) Destroy() error {
	s.mu.lock()
	if s.destroyed {
		s.mu.unlock()
		return nil
	}
	s.destroyed = true
	s.subscribers = make(map[int]func(SessionEvent))
	s.mu.unlock()

	s.client.forgetSession(s.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultStopTimeout)
	defer cancel()
	return s.client.call(ctx, "session.destroy", sessionRefParams{SessionID: s.SessionID}, nil)
}

func (s *Session) isDestroyed() bool {
	s.mu.lock()
	defer s.mu.unlock()
	return s.destroyed
}

// dispatch fans one event out to subscribers. A panicking subscriber is
// logged and skipped so it cannot take down the read loop.
func (s *Session) dispatch(ev SessionEvent) {
	s.mu.lock()
	handlers := make([]func(SessionEvent), 0, len(s.subscribers))
	for _, h := range s.subscribers {
		handlers = append(handlers, h)
	}
	s.mu.unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.client.log.Error().
						Str("session_id", s.SessionID).
						Str("event_type", string(ev.Type)).
						Interface("panic", r).
						Msg("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}

// handleToolCall serves one tool/execute reverse request. Unknown tools and
// panicking handlers resolve to failure results rather than RPC errors so
// the model gets a readable outcome.
func (s *Session) handleToolCall(inv ToolInvocation) (result ToolResult) {
	tool, ok := s.tools[inv.ToolName]
	if !ok || tool.Handler == nil {
		return unsupportedResult(inv.ToolName)
	}
	defer func() {
		if r := recover(); r != nil {
			s.client.log.Error().
				Str("session_id", s.SessionID).
				Str("tool", inv.ToolName).
				Interface("panic", r).
				Msg("tool handler panicked")
			result = FailureResult(fmt.Errorf("tool %q panicked: %v", inv.ToolName, r))
		}
	}()
	res, err := tool.Handler(inv)
	if err != nil {
		return FailureResult(err)
	}
	return res
}

// handlePermission serves one permission/request reverse request. Without a
// handler the request is denied.
func (s *Session) handlePermission(req PermissionRequest) (PermissionRequestResult, error) {
	if s.onPermission == nil {
		return PermissionRequestResult{Kind: "denied-interactively-by-user"}, nil
	}
	return s.onPermission(req, PermissionInvocation{SessionID: s.SessionID})
}

// handleUserInput serves one userInput/request reverse request.
func (s *Session) handleUserInput(req UserInputRequest) (UserInputResponse, error) {
	if s.onUserInput == nil {
		return UserInputResponse{}, fmt.Errorf("session %s has no user input handler", s.SessionID)
	}
	return s.onUserInput(req, UserInputInvocation{SessionID: s.SessionID})
}

// handleHook serves one hook/invoke reverse request.
func (s *Session) handleHook(hookType string, input json.RawMessage) (any, error) {
	return s.hooks.invoke(hookType, input, HookInvocation{SessionID: s.SessionID})
}
