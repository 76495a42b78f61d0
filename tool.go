package copilot

import (
	"encoding/json"
	"fmt"

	"github.com/armatrix/copilot-sdk-go/internal/schema"
)

// ToolInvocation carries the context of one tool call from the CLI.
type ToolInvocation struct {
	// SessionID of the session the call belongs to.
	SessionID string `json:"sessionId"`
	// ToolCallID identifies this call in the event stream.
	ToolCallID string `json:"toolCallId"`
	// ToolName as declared in SessionConfig.Tools.
	ToolName string `json:"toolName"`
	// Arguments is the raw JSON argument object produced by the model.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is what a tool handler returns to the model.
type ToolResult struct {
	// TextResultForLLM is the text the model sees.
	TextResultForLLM string `json:"textResultForLlm"`
	// ResultType is "success" or "failure".
	ResultType string `json:"resultType"`
	// Error describes the failure when ResultType is "failure".
	Error *string `json:"error,omitempty"`
	// SessionLog is recorded in the session transcript but hidden from
	// the model.
	SessionLog string `json:"sessionLog,omitempty"`
	// BinaryResultsForLlm carries non-text payloads (e.g. images).
	BinaryResultsForLlm []map[string]any `json:"binaryResultsForLlm,omitempty"`
	// ToolTelemetry is free-form telemetry attached to the call.
	ToolTelemetry map[string]any `json:"toolTelemetry,omitempty"`
}

// SuccessResult builds a successful ToolResult with the given model-visible
// text.
func SuccessResult(text string) ToolResult {
	return ToolResult{TextResultForLLM: text, ResultType: "success"}
}

// FailureResult builds a failed ToolResult. The error detail goes to the
// session log; the model sees only a generic failure notice.
func FailureResult(err error) ToolResult {
	msg := err.Error()
	return ToolResult{
		TextResultForLLM: "Invoking this tool produced an error. Detailed information is not available.",
		ResultType:       "failure",
		Error:            &msg,
		SessionLog:       msg,
	}
}

// unsupportedResult is returned when the CLI calls a tool this client never
// registered.
func unsupportedResult(name string) ToolResult {
	msg := fmt.Sprintf("Tool '%s' is not supported by this client instance.", name)
	return ToolResult{
		TextResultForLLM: msg,
		ResultType:       "failure",
		Error:            &msg,
	}
}

// Tool is a caller-implemented tool exposed to the model. Prefer DefineTool,
// which derives Parameters from a typed argument struct.
type Tool struct {
	// Name the model calls the tool by.
	Name string `json:"name"`
	// Description tells the model when to use the tool.
	Description string `json:"description,omitempty"`
	// Parameters is the JSON Schema of the argument object.
	Parameters map[string]any `json:"parameters,omitempty"`
	// Handler runs the tool. It is invoked on the client's read loop
	// dispatch goroutine, one goroutine per call.
	Handler func(ToolInvocation) (ToolResult, error) `json:"-"`
}

// DefineTool builds a Tool from a typed handler. The parameter schema is
// generated from TArgs via reflection; use jsonschema struct tags to add
// descriptions and constraints. The result value is serialized as the
// model-visible text unless it already is a ToolResult.
func DefineTool[TArgs, TResult any](name, description string, handler func(args TArgs, inv ToolInvocation) (TResult, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schema.Generate[TArgs](),
		Handler: func(inv ToolInvocation) (ToolResult, error) {
			var args TArgs
			if len(inv.Arguments) > 0 {
				if err := json.Unmarshal(inv.Arguments, &args); err != nil {
					return FailureResult(fmt.Errorf("invalid arguments for tool %q: %w", name, err)), nil
				}
			}
			result, err := handler(args, inv)
			if err != nil {
				return FailureResult(err), nil
			}
			if tr, ok := any(result).(ToolResult); ok {
				return tr, nil
			}
			text, err := json.Marshal(result)
			if err != nil {
				return FailureResult(fmt.Errorf("marshaling result of tool %q: %w", name, err)), nil
			}
			return SuccessResult(string(text)), nil
		},
	}
}
