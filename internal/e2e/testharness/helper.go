package testharness

import (
	"context"
	"errors"
	"time"

	copilot "github.com/armatrix/copilot-sdk-go"
)

// GetNextEventOfType waits for the next event of the given type from a
// session. A session.error event fails the wait early.
func GetNextEventOfType(session *copilot.Session, eventType copilot.SessionEventType, timeout time.Duration) (*copilot.SessionEvent, error) {
	result := make(chan *copilot.SessionEvent, 1)
	errCh := make(chan error, 1)

	unsubscribe := session.On(func(event copilot.SessionEvent) {
		switch event.Type {
		case eventType:
			select {
			case result <- &event:
			default:
			}
		case copilot.SessionError:
			msg := "session error"
			if event.Data.Message != nil {
				msg = *event.Data.Message
			}
			select {
			case errCh <- errors.New(msg):
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case evt := <-result:
		return evt, nil
	case err := <-errCh:
		return nil, err
	case <-time.After(timeout):
		return nil, errors.New("timeout waiting for event: " + string(eventType))
	}
}

// GetFinalAssistantMessage waits for the session to go idle and returns
// the last assistant.message of the turn.
func GetFinalAssistantMessage(ctx context.Context, session *copilot.Session) (*copilot.SessionEvent, error) {
	var last *copilot.SessionEvent
	idle := make(chan struct{}, 1)
	errCh := make(chan error, 1)

	unsubscribe := session.On(func(event copilot.SessionEvent) {
		switch event.Type {
		case copilot.AssistantMessage:
			e := event
			last = &e
		case copilot.SessionIdle:
			select {
			case idle <- struct{}{}:
			default:
			}
		case copilot.SessionError:
			msg := "session error"
			if event.Data.Message != nil {
				msg = *event.Data.Message
			}
			select {
			case errCh <- errors.New(msg):
			default:
			}
		}
	})
	defer unsubscribe()

	select {
	case <-idle:
		if last == nil {
			return nil, errors.New("session went idle without an assistant message")
		}
		return last, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
