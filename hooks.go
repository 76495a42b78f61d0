package copilot

import "encoding/json"

// HookInvocation carries the context of a hook call from the CLI.
type HookInvocation struct {
	SessionID string `json:"sessionId"`
}

// SessionStartHookInput is delivered when a session starts or resumes.
type SessionStartHookInput struct {
	// Source is "startup" or "resume".
	Source string `json:"source,omitempty"`
}

// SessionStartHookOutput can add context to the starting session.
type SessionStartHookOutput struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// SessionEndHookInput is delivered when a session ends.
type SessionEndHookInput struct {
	Reason string `json:"reason,omitempty"`
}

// SessionEndHookOutput is reserved; session end cannot be altered.
type SessionEndHookOutput struct{}

// PreToolUseHookInput is delivered before a tool runs.
type PreToolUseHookInput struct {
	ToolName string          `json:"toolName"`
	ToolArgs json.RawMessage `json:"toolArgs,omitempty"`
}

// PreToolUseHookOutput can override the permission flow or rewrite input.
type PreToolUseHookOutput struct {
	// PermissionDecision is "allow", "deny", or "ask".
	PermissionDecision string `json:"permissionDecision,omitempty"`
	// PermissionDecisionReason is shown when the decision is "deny".
	PermissionDecisionReason string `json:"permissionDecisionReason,omitempty"`
	// ModifiedArgs replaces the tool arguments before execution.
	ModifiedArgs json.RawMessage `json:"modifiedArgs,omitempty"`
}

// PostToolUseHookInput is delivered after a tool ran.
type PostToolUseHookInput struct {
	ToolName   string          `json:"toolName"`
	ToolArgs   json.RawMessage `json:"toolArgs,omitempty"`
	ToolResult json.RawMessage `json:"toolResult,omitempty"`
}

// PostToolUseHookOutput can add follow-up context for the model.
type PostToolUseHookOutput struct {
	AdditionalContext string `json:"additionalContext,omitempty"`
}

// UserPromptSubmittedHookInput carries the prompt about to be sent.
type UserPromptSubmittedHookInput struct {
	Prompt string `json:"prompt"`
}

// UserPromptSubmittedHookOutput can rewrite or block the prompt.
type UserPromptSubmittedHookOutput struct {
	ModifiedPrompt string `json:"modifiedPrompt,omitempty"`
	Block          bool   `json:"block,omitempty"`
	BlockReason    string `json:"blockReason,omitempty"`
}

// ErrorOccurredHookInput is delivered when the session hits an error.
type ErrorOccurredHookInput struct {
	Error string `json:"error"`
	// Recoverable reports whether the session keeps running.
	Recoverable bool `json:"recoverable,omitempty"`
}

// ErrorOccurredHookOutput is reserved; errors cannot be suppressed.
type ErrorOccurredHookOutput struct{}

// SessionHooks intercepts session lifecycle points. A nil field skips that
// hook. Returning a nil output means "no change"; returning an error fails
// the hook, which the CLI reports via a hook.end event.
type SessionHooks struct {
	OnSessionStart        func(input SessionStartHookInput, inv HookInvocation) (*SessionStartHookOutput, error)
	OnSessionEnd          func(input SessionEndHookInput, inv HookInvocation) (*SessionEndHookOutput, error)
	OnPreToolUse          func(input PreToolUseHookInput, inv HookInvocation) (*PreToolUseHookOutput, error)
	OnPostToolUse         func(input PostToolUseHookInput, inv HookInvocation) (*PostToolUseHookOutput, error)
	OnUserPromptSubmitted func(input UserPromptSubmittedHookInput, inv HookInvocation) (*UserPromptSubmittedHookOutput, error)
	OnErrorOccurred       func(input ErrorOccurredHookInput, inv HookInvocation) (*ErrorOccurredHookOutput, error)
}

// hookNames lists the hook types this client registers with the CLI, in the
// order the wire protocol expects.
func (h *SessionHooks) hookNames() []string {
	if h == nil {
		return nil
	}
	var names []string
	if h.OnSessionStart != nil {
		names = append(names, "sessionStart")
	}
	if h.OnSessionEnd != nil {
		names = append(names, "sessionEnd")
	}
	if h.OnPreToolUse != nil {
		names = append(names, "preToolUse")
	}
	if h.OnPostToolUse != nil {
		names = append(names, "postToolUse")
	}
	if h.OnUserPromptSubmitted != nil {
		names = append(names, "userPromptSubmitted")
	}
	if h.OnErrorOccurred != nil {
		names = append(names, "errorOccurred")
	}
	return names
}

// invoke dispatches one hook.invoke call to the matching handler. The
// returned output is nil when the hook made no change.
func (h *SessionHooks) invoke(hookType string, input json.RawMessage, inv HookInvocation) (any, error) {
	if h == nil {
		return nil, nil
	}
	switch hookType {
	case "sessionStart":
		if h.OnSessionStart == nil {
			return nil, nil
		}
		var in SessionStartHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return h.OnSessionStart(in, inv)
	case "sessionEnd":
		if h.OnSessionEnd == nil {
			return nil, nil
		}
		var in SessionEndHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return h.OnSessionEnd(in, inv)
	case "preToolUse":
		if h.OnPreToolUse == nil {
			return nil, nil
		}
		var in PreToolUseHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return h.OnPreToolUse(in, inv)
	case "postToolUse":
		if h.OnPostToolUse == nil {
			return nil, nil
		}
		var in PostToolUseHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return h.OnPostToolUse(in, inv)
	case "userPromptSubmitted":
		if h.OnUserPromptSubmitted == nil {
			return nil, nil
		}
		var in UserPromptSubmittedHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return h.OnUserPromptSubmitted(in, inv)
	case "errorOccurred":
		if h.OnErrorOccurred == nil {
			return nil, nil
		}
		var in ErrorOccurredHookInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return h.OnErrorOccurred(in, inv)
	}
	return nil, nil
}
