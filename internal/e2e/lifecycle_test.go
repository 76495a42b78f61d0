package e2e

import (
	"strings"
	"testing"

	copilot "github.com/armatrix/copilot-sdk-go"
	"github.com/armatrix/copilot-sdk-go/internal/e2e/testharness"
)

func TestClientLifecycle(t *testing.T) {
	ctx := testharness.NewTestContext(t)
	client := ctx.NewClient()
	t.Cleanup(func() { client.ForceStop() })

	if err := client.Start(t.Context()); err != nil {
		t.Fatalf("Failed to start client: %v", err)
	}
	if state := client.GetState(); state != copilot.StateConnected {
		t.Fatalf("Expected connected state, got %s", state)
	}

	t.Run("ping round trip", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		res, err := client.Ping(t.Context(), "e2e")
		if err != nil {
			t.Fatalf("Failed to ping: %v", err)
		}
		if !strings.Contains(res.Message, "e2e") {
			t.Errorf("Expected echo of the ping message, got: %s", res.Message)
		}
	})

	t.Run("create send destroy", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		session, err := client.CreateSession(t.Context(), ctx.SessionConfig())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		if session.SessionID == "" {
			t.Fatal("Expected non-empty session ID")
		}

		message, err := session.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "What is 2+2? Reply with just the number.",
		})
		if err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}
		if message == nil || message.Data.Content == nil || !strings.Contains(*message.Data.Content, "4") {
			t.Errorf("Expected message to contain '4', got: %v", message)
		}

		if err := session.Destroy(); err != nil {
			t.Errorf("Failed to destroy session: %v", err)
		}
	})

	t.Run("session history", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		session, err := client.CreateSession(t.Context(), ctx.SessionConfig())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		defer session.Destroy()

		if _, err := session.SendAndWait(t.Context(), copilot.MessageOptions{Prompt: "Say hi."}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		events, err := session.GetMessages(t.Context())
		if err != nil {
			t.Fatalf("Failed to get messages: %v", err)
		}
		var haveUser, haveAssistant bool
		for _, ev := range events {
			switch ev.Type {
			case copilot.UserMessage:
				haveUser = true
			case copilot.AssistantMessage:
				haveAssistant = true
			}
		}
		if !haveUser || !haveAssistant {
			t.Errorf("Expected user and assistant messages in history, got %d events", len(events))
		}
	})

	t.Run("resume preserves context", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		session1, err := client.CreateSession(t.Context(), ctx.SessionConfig())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		sessionID := session1.SessionID

		if _, err := session1.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "Remember this number: 7391. Just acknowledge.",
		}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}
		session1.Destroy()

		session2, err := client.ResumeSession(t.Context(), sessionID)
		if err != nil {
			t.Fatalf("Failed to resume session: %v", err)
		}
		defer session2.Destroy()

		message, err := session2.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "What number did I ask you to remember? Reply with just the number.",
		})
		if err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}
		if message == nil || message.Data.Content == nil || !strings.Contains(*message.Data.Content, "7391") {
			t.Errorf("Expected resumed session to recall the number, got: %v", message)
		}
	})

	t.Run("list and delete", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		session, err := client.CreateSession(t.Context(), ctx.SessionConfig())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		sessionID := session.SessionID
		session.Destroy()

		sessions, err := client.ListSessions(t.Context())
		if err != nil {
			t.Fatalf("Failed to list sessions: %v", err)
		}
		found := false
		for _, meta := range sessions {
			if meta.SessionID == sessionID {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected session %s in the listing", sessionID)
		}

		if err := client.DeleteSession(t.Context(), sessionID); err != nil {
			t.Fatalf("Failed to delete session: %v", err)
		}
	})
}

func TestStreaming(t *testing.T) {
	ctx := testharness.NewTestContext(t)
	client := ctx.NewClient()
	t.Cleanup(func() { client.ForceStop() })

	if err := client.Start(t.Context()); err != nil {
		t.Fatalf("Failed to start client: %v", err)
	}
	ctx.ConfigureForTest(t)

	cfg := ctx.SessionConfig()
	cfg.Streaming = true
	session, err := client.CreateSession(t.Context(), cfg)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer session.Destroy()

	deltas := 0
	session.On(func(ev copilot.SessionEvent) {
		if ev.Type == copilot.AssistantMessageDelta {
			deltas++
		}
	})

	if _, err := session.SendAndWait(t.Context(), copilot.MessageOptions{
		Prompt: "Write two sentences about the sea.",
	}); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if deltas == 0 {
		t.Error("Expected assistant.message_delta events with streaming enabled")
	}
}
