package copilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReturnsMessageID(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	reqCh := make(chan map[string]any, 1)
	go func() {
		reqCh <- cli.respondNext(t, "session.send", map[string]any{"messageId": "m-1"})
	}()

	id, err := session.Send(context.Background(), MessageOptions{Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)

	params := (<-reqCh)["params"].(map[string]any)
	assert.Equal(t, "s-1", params["sessionId"])
	assert.Equal(t, "hello", params["prompt"])
}

func TestSendMissingMessageID(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	go cli.respondNext(t, "session.send", map[string]any{})

	_, err := session.Send(context.Background(), MessageOptions{Prompt: "hello"})
	assert.ErrorIs(t, err, ErrNoMessageID)
}

func TestSendAndWaitReturnsFinalAssistantMessage(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	go func() {
		cli.respondNext(t, "session.send", map[string]any{"messageId": "m-1"})
		cli.sendEvent(t, "s-1", map[string]any{
			"id": "e1", "type": "assistant.message",
			"data": map[string]any{"content": "first draft"},
		})
		cli.sendEvent(t, "s-1", map[string]any{
			"id": "e2", "type": "assistant.message",
			"data": map[string]any{"content": "final answer"},
		})
		cli.sendEvent(t, "s-1", map[string]any{"id": "e3", "type": "session.idle", "data": map[string]any{}})
	}()

	event, err := session.SendAndWait(context.Background(), MessageOptions{Prompt: "question"})
	require.NoError(t, err)
	require.NotNil(t, event)
	require.NotNil(t, event.Data.Content)
	assert.Equal(t, "final answer", *event.Data.Content)
}

func TestSendAndWaitNoAssistantMessage(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	go func() {
		cli.respondNext(t, "session.send", map[string]any{"messageId": "m-1"})
		cli.sendEvent(t, "s-1", map[string]any{"id": "e1", "type": "session.idle", "data": map[string]any{}})
	}()

	event, err := session.SendAndWait(context.Background(), MessageOptions{Prompt: "question"})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestSendAndWaitSessionError(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	go func() {
		cli.respondNext(t, "session.send", map[string]any{"messageId": "m-1"})
		cli.sendEvent(t, "s-1", map[string]any{
			"id": "e1", "type": "session.error",
			"data": map[string]any{"message": "model unavailable"},
		})
	}()

	_, err := session.SendAndWait(context.Background(), MessageOptions{Prompt: "question"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestSendAndWaitTimeout(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	go cli.respondNext(t, "session.send", map[string]any{"messageId": "m-1"})
	// No idle event ever arrives.

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.SendAndWait(ctx, MessageOptions{Prompt: "question"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnUnsubscribe(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	var mu sync.Mutex
	var seen []string
	unsubscribe := session.On(func(ev SessionEvent) {
		mu.Lock()
		seen = append(seen, string(ev.Type))
		mu.Unlock()
	})

	cli.sendEvent(t, "s-1", map[string]any{"id": "e1", "type": "session.idle", "data": map[string]any{}})
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})

	unsubscribe()
	cli.sendEvent(t, "s-1", map[string]any{"id": "e2", "type": "session.idle", "data": map[string]any{}})

	// Drain with a follow-up round trip so the second event had time to land.
	go cli.respondNext(t, "ping", map[string]any{"message": "pong: x", "timestamp": 1})
	_, err := c.Ping(context.Background(), "x")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 1)
}

func TestEventHandlerPanicDoesNotStopDispatch(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	var mu sync.Mutex
	delivered := 0
	session.On(func(SessionEvent) { panic("boom") })
	session.On(func(SessionEvent) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	cli.sendEvent(t, "s-1", map[string]any{"id": "e1", "type": "session.idle", "data": map[string]any{}})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 1
	})
}

func TestDestroy(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	go cli.respondNext(t, "session.destroy", map[string]any{})
	require.NoError(t, session.Destroy())

	// Idempotent: the second call must not issue another RPC.
	require.NoError(t, session.Destroy())

	_, err := session.Send(context.Background(), MessageOptions{Prompt: "late"})
	assert.ErrorIs(t, err, ErrSessionDestroyed)

	_, err = session.GetMessages(context.Background())
	assert.ErrorIs(t, err, ErrSessionDestroyed)

	assert.ErrorIs(t, session.Abort(context.Background()), ErrSessionDestroyed)
}

func TestGetMessages(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	go cli.respondNext(t, "session.getMessages", map[string]any{
		"events": []any{
			map[string]any{"id": "e1", "type": "user.message", "data": map[string]any{"content": "hi"}},
			map[string]any{"id": "e2", "type": "assistant.message", "data": map[string]any{"content": "hello"}},
		},
	})

	events, err := session.GetMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, UserMessage, events[0].Type)
	assert.Equal(t, AssistantMessage, events[1].Type)
}

func TestAbort(t *testing.T) {
	c, cli := newTestClient(t)
	session := createTestSession(t, c, cli, nil)

	reqCh := make(chan map[string]any, 1)
	go func() {
		reqCh <- cli.respondNext(t, "session.abort", map[string]any{})
	}()

	require.NoError(t, session.Abort(context.Background()))
	params := (<-reqCh)["params"].(map[string]any)
	assert.Equal(t, "s-1", params["sessionId"])
}

func TestToolExecuteDispatch(t *testing.T) {
	c, cli := newTestClient(t)

	type addArgs struct {
		A int `json:"a"`
		B int `json:"b"`
	}
	createTestSession(t, c, cli, &SessionConfig{
		Tools: []Tool{
			DefineTool("add", "Adds two numbers", func(args addArgs, inv ToolInvocation) (string, error) {
				return fmt.Sprintf("%d", args.A+args.B), nil
			}),
		},
	})

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "tool/execute",
		"params": map[string]any{
			"sessionId":  "s-1",
			"toolName":   "add",
			"toolCallId": "tc-1",
			"arguments":  map[string]any{"a": 2, "b": 3},
		},
	})

	resp := cli.readMessage(t)
	assert.Equal(t, "srv-1", resp["id"])
	result := resp["result"].(map[string]any)
	assert.Equal(t, "success", result["resultType"])
	assert.Equal(t, `"5"`, result["textResultForLlm"])
}

func TestToolExecuteUnknownTool(t *testing.T) {
	c, cli := newTestClient(t)
	createTestSession(t, c, cli, nil)

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "tool/execute",
		"params": map[string]any{
			"sessionId":  "s-1",
			"toolName":   "missing",
			"toolCallId": "tc-1",
		},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "failure", result["resultType"])
	assert.Contains(t, result["textResultForLlm"], "'missing' is not supported")
}

func TestToolExecuteHandlerError(t *testing.T) {
	c, cli := newTestClient(t)

	createTestSession(t, c, cli, &SessionConfig{
		Tools: []Tool{
			DefineTool("explode", "Always fails", func(args struct{}, inv ToolInvocation) (string, error) {
				return "", errors.New("disk on fire")
			}),
		},
	})

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "tool/execute",
		"params": map[string]any{
			"sessionId": "s-1", "toolName": "explode", "toolCallId": "tc-1",
		},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "failure", result["resultType"])
	assert.Equal(t, "disk on fire", result["error"])
	assert.NotContains(t, result["textResultForLlm"], "disk on fire")
}

func TestToolExecutePanicBecomesFailure(t *testing.T) {
	c, cli := newTestClient(t)

	createTestSession(t, c, cli, &SessionConfig{
		Tools: []Tool{
			DefineTool("panicky", "Panics", func(args struct{}, inv ToolInvocation) (string, error) {
				panic("unexpected state")
			}),
		},
	})

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "tool/execute",
		"params": map[string]any{
			"sessionId": "s-1", "toolName": "panicky", "toolCallId": "tc-1",
		},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "failure", result["resultType"])
	assert.Contains(t, result["error"], "unexpected state")
}

func TestPermissionRequestApproved(t *testing.T) {
	c, cli := newTestClient(t)

	var mu sync.Mutex
	var got []PermissionRequest
	createTestSession(t, c, cli, &SessionConfig{
		OnPermissionRequest: func(req PermissionRequest, inv PermissionInvocation) (PermissionRequestResult, error) {
			mu.Lock()
			got = append(got, req)
			mu.Unlock()
			assert.Equal(t, "s-1", inv.SessionID)
			return PermissionRequestResult{Kind: "approved"}, nil
		},
	})

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "permission/request",
		"params": map[string]any{
			"sessionId":  "s-1",
			"kind":       "shell",
			"toolCallId": "tc-1",
			"command":    "echo hi",
		},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "approved", result["kind"])

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "shell", got[0].Kind)
	assert.Equal(t, "tc-1", got[0].ToolCallID)
	assert.Contains(t, got[0].Extra, "command")
}

func TestPermissionRequestDefaultDeny(t *testing.T) {
	c, cli := newTestClient(t)
	createTestSession(t, c, cli, nil)

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "permission/request",
		"params":  map[string]any{"sessionId": "s-1", "kind": "write"},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "denied-interactively-by-user", result["kind"])
}

func TestUserInputRequest(t *testing.T) {
	c, cli := newTestClient(t)

	createTestSession(t, c, cli, &SessionConfig{
		OnUserInputRequest: func(req UserInputRequest, inv UserInputInvocation) (UserInputResponse, error) {
			assert.Equal(t, "Proceed?", req.Question)
			return UserInputResponse{Answer: "yes"}, nil
		},
	})

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "userInput/request",
		"params":  map[string]any{"sessionId": "s-1", "question": "Proceed?"},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	assert.Equal(t, "yes", result["answer"])
}

func TestUserInputRequestWithoutHandler(t *testing.T) {
	c, cli := newTestClient(t)
	createTestSession(t, c, cli, nil)

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "userInput/request",
		"params":  map[string]any{"sessionId": "s-1", "question": "Proceed?"},
	})

	resp := cli.readMessage(t)
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok, "expected error response, got %v", resp)
	assert.Contains(t, errObj["message"], "no user input handler")
}

func TestHookInvoke(t *testing.T) {
	c, cli := newTestClient(t)

	createTestSession(t, c, cli, &SessionConfig{
		Hooks: &SessionHooks{
			OnPreToolUse: func(input PreToolUseHookInput, inv HookInvocation) (*PreToolUseHookOutput, error) {
				assert.Equal(t, "bash", input.ToolName)
				return &PreToolUseHookOutput{PermissionDecision: "allow"}, nil
			},
		},
	})

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "hook/invoke",
		"params": map[string]any{
			"sessionId": "s-1",
			"hookType":  "preToolUse",
			"input":     map[string]any{"toolName": "bash"},
		},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	output := result["output"].(map[string]any)
	assert.Equal(t, "allow", output["permissionDecision"])
}

func TestHookInvokeUnregisteredHook(t *testing.T) {
	c, cli := newTestClient(t)
	createTestSession(t, c, cli, &SessionConfig{Hooks: &SessionHooks{}})

	cli.writeMessage(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      "srv-1",
		"method":  "hook/invoke",
		"params": map[string]any{
			"sessionId": "s-1",
			"hookType":  "preToolUse",
			"input":     map[string]any{"toolName": "bash"},
		},
	})

	resp := cli.readMessage(t)
	result := resp["result"].(map[string]any)
	assert.Nil(t, result["output"])
}
