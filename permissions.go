package copilot

import "encoding/json"

// PermissionRequest is the CLI asking whether a tool may run.
type PermissionRequest struct {
	// Kind of permission, e.g. "write", "shell", "mcp", "read".
	Kind string `json:"kind"`
	// ToolCallID links the request to a tool.execution_start event.
	ToolCallID string `json:"toolCallId,omitempty"`
	// Extra carries kind-specific fields (command text, paths, server
	// names) that the CLI adds per release.
	Extra map[string]json.RawMessage `json:"-"`
}

func (p *PermissionRequest) UnmarshalJSON(data []byte) error {
	type plain PermissionRequest
	if err := json.Unmarshal(data, (*plain)(p)); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	delete(all, "kind")
	delete(all, "toolCallId")
	delete(all, "sessionId")
	if len(all) > 0 {
		p.Extra = all
	}
	return nil
}

// PermissionInvocation carries the context of a permission prompt.
type PermissionInvocation struct {
	SessionID string `json:"sessionId"`
}

// PermissionRequestResult is the handler's decision.
type PermissionRequestResult struct {
	// Kind is "approved" or "denied-interactively-by-user".
	Kind string `json:"kind"`
	// Rules optionally persists approval rules for later calls.
	Rules []map[string]any `json:"rules,omitempty"`
}

// PermissionHandlerFunc decides permission prompts for a session.
type PermissionHandlerFunc func(req PermissionRequest, inv PermissionInvocation) (PermissionRequestResult, error)

// PermissionHandler holds ready-made permission handlers.
var PermissionHandler = struct {
	// ApproveAll approves every request. Use only in sandboxed or test
	// environments.
	ApproveAll PermissionHandlerFunc
}{
	ApproveAll: func(PermissionRequest, PermissionInvocation) (PermissionRequestResult, error) {
		return PermissionRequestResult{Kind: "approved"}, nil
	},
}
