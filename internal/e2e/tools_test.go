package e2e

import (
	"strings"
	"sync"
	"testing"

	copilot "github.com/armatrix/copilot-sdk-go"
	"github.com/armatrix/copilot-sdk-go/internal/e2e/testharness"
	"github.com/armatrix/copilot-sdk-go/usage"
)

func TestCustomTools(t *testing.T) {
	ctx := testharness.NewTestContext(t)
	client := ctx.NewClient()
	t.Cleanup(func() { client.ForceStop() })

	if err := client.Start(t.Context()); err != nil {
		t.Fatalf("Failed to start client: %v", err)
	}

	t.Run("model can call a registered tool", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		type lookupArgs struct {
			Key string `json:"key" jsonschema:"description=The key to look up"`
		}

		var mu sync.Mutex
		var calls []string

		cfg := ctx.SessionConfig()
		cfg.Tools = []copilot.Tool{
			copilot.DefineTool("lookup_secret", "Looks up a secret value by key. Use this whenever asked about secrets.",
				func(args lookupArgs, inv copilot.ToolInvocation) (string, error) {
					mu.Lock()
					calls = append(calls, args.Key)
					mu.Unlock()
					return "XYZZY-" + args.Key, nil
				}),
		}

		session, err := client.CreateSession(t.Context(), cfg)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		defer session.Destroy()

		message, err := session.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "Use the lookup_secret tool with key 'alpha' and tell me the value verbatim.",
		})
		if err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		mu.Lock()
		callCount := len(calls)
		mu.Unlock()
		if callCount == 0 {
			t.Fatal("Expected the tool to be invoked")
		}
		if message == nil || message.Data.Content == nil || !strings.Contains(*message.Data.Content, "XYZZY-alpha") {
			t.Errorf("Expected the tool result in the reply, got: %v", message)
		}
	})

	t.Run("usage tracker observes tool turns", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		session, err := client.CreateSession(t.Context(), ctx.SessionConfig())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		defer session.Destroy()

		tracker := usage.NewTracker()
		detach := tracker.Attach(session)
		defer detach()

		if _, err := session.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "What is 3*3? Reply with just the number.",
		}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		if tracker.TotalTokens() == 0 {
			t.Error("Expected the tracker to record token usage for the turn")
		}
	})
}
