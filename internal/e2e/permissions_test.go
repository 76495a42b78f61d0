package e2e

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	copilot "github.com/armatrix/copilot-sdk-go"
	"github.com/armatrix/copilot-sdk-go/internal/e2e/testharness"
)

func TestPermissions(t *testing.T) {
	ctx := testharness.NewTestContext(t)
	client := ctx.NewClient()
	t.Cleanup(func() { client.ForceStop() })

	if err := client.Start(t.Context()); err != nil {
		t.Fatalf("Failed to start client: %v", err)
	}

	t.Run("permission handler for write operations", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		var mu sync.Mutex
		var requests []copilot.PermissionRequest

		cfg := ctx.SessionConfig()
		cfg.OnPermissionRequest = func(request copilot.PermissionRequest, invocation copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
			mu.Lock()
			requests = append(requests, request)
			mu.Unlock()
			if invocation.SessionID == "" {
				t.Error("Expected non-empty session ID in invocation")
			}
			return copilot.PermissionRequestResult{Kind: "approved"}, nil
		}

		session, err := client.CreateSession(t.Context(), cfg)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		defer session.Destroy()

		testFile := filepath.Join(ctx.WorkDir, "test.txt")
		if err := os.WriteFile(testFile, []byte("original content"), 0644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}

		if _, err := session.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "Edit test.txt and replace 'original' with 'modified'",
		}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		writeCount := 0
		for _, req := range requests {
			if req.Kind == "write" {
				writeCount++
			}
		}
		if writeCount == 0 {
			t.Error("Expected at least one write permission request")
		}
	})

	t.Run("deny permission", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		cfg := ctx.SessionConfig()
		cfg.OnPermissionRequest = func(copilot.PermissionRequest, copilot.PermissionInvocation) (copilot.PermissionRequestResult, error) {
			return copilot.PermissionRequestResult{Kind: "denied-interactively-by-user"}, nil
		}

		session, err := client.CreateSession(t.Context(), cfg)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		defer session.Destroy()

		testFile := filepath.Join(ctx.WorkDir, "protected.txt")
		originalContent := []byte("protected content")
		if err := os.WriteFile(testFile, originalContent, 0644); err != nil {
			t.Fatalf("Failed to write test file: %v", err)
		}

		if _, err := session.Send(t.Context(), copilot.MessageOptions{
			Prompt: "Edit protected.txt and replace 'protected' with 'hacked'.",
		}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}
		if _, err := testharness.GetFinalAssistantMessage(t.Context(), session); err != nil {
			t.Fatalf("Failed to get final message: %v", err)
		}

		content, err := os.ReadFile(testFile)
		if err != nil {
			t.Fatalf("Failed to read test file: %v", err)
		}
		if string(content) != string(originalContent) {
			t.Errorf("Expected file to remain unchanged after denied permission, got: %s", content)
		}
	})

	t.Run("deny by default when no handler is provided", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		session, err := client.CreateSession(t.Context(), ctx.SessionConfig())
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		defer session.Destroy()

		var mu sync.Mutex
		permissionDenied := false

		session.On(func(event copilot.SessionEvent) {
			if event.Type == copilot.ToolExecutionComplete &&
				event.Data.Success != nil && !*event.Data.Success &&
				event.Data.Error != nil && event.Data.Error.ErrorClass != nil &&
				strings.Contains(event.Data.Error.ErrorClass.Message, "Permission denied") {
				mu.Lock()
				permissionDenied = true
				mu.Unlock()
			}
		})

		if _, err = session.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "Run 'node --version'",
		}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if !permissionDenied {
			t.Error("Expected a tool.execution_complete event with Permission denied result")
		}
	})

	t.Run("deny by default after resume", func(t *testing.T) {
		ctx.ConfigureForTest(t)

		cfg := ctx.SessionConfig()
		cfg.OnPermissionRequest = copilot.PermissionHandler.ApproveAll
		session1, err := client.CreateSession(t.Context(), cfg)
		if err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}
		sessionID := session1.SessionID
		if _, err = session1.SendAndWait(t.Context(), copilot.MessageOptions{Prompt: "What is 1+1?"}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		session2, err := client.ResumeSession(t.Context(), sessionID)
		if err != nil {
			t.Fatalf("Failed to resume session: %v", err)
		}
		defer session2.Destroy()

		var mu sync.Mutex
		permissionDenied := false

		session2.On(func(event copilot.SessionEvent) {
			if event.Type == copilot.ToolExecutionComplete &&
				event.Data.Success != nil && !*event.Data.Success &&
				event.Data.Error != nil && event.Data.Error.ErrorClass != nil &&
				strings.Contains(event.Data.Error.ErrorClass.Message, "Permission denied") {
				mu.Lock()
				permissionDenied = true
				mu.Unlock()
			}
		})

		if _, err = session2.SendAndWait(t.Context(), copilot.MessageOptions{
			Prompt: "Run 'node --version'",
		}); err != nil {
			t.Fatalf("Failed to send message: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		if !permissionDenied {
			t.Error("Expected a tool.execution_complete event with Permission denied result")
		}
	})
}
