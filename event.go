package copilot

import (
	"encoding/json"
	"time"
)

// SessionEventType identifies the kind of event emitted by a session.
// The values mirror the CLI's session-events schema.
type SessionEventType string

const (
	SessionStart              SessionEventType = "session.start"
	SessionResume             SessionEventType = "session.resume"
	SessionIdle               SessionEventType = "session.idle"
	SessionError              SessionEventType = "session.error"
	SessionInfo               SessionEventType = "session.info"
	SessionHandoff            SessionEventType = "session.handoff"
	SessionModelChange        SessionEventType = "session.model_change"
	SessionTruncation         SessionEventType = "session.truncation"
	SessionUsageInfo          SessionEventType = "session.usage_info"
	SessionCompactionStart    SessionEventType = "session.compaction_start"
	SessionCompactionComplete SessionEventType = "session.compaction_complete"

	UserMessage   SessionEventType = "user.message"
	SystemMessage SessionEventType = "system.message"
	Abort         SessionEventType = "abort"

	AssistantIntent         SessionEventType = "assistant.intent"
	AssistantMessage        SessionEventType = "assistant.message"
	AssistantMessageDelta   SessionEventType = "assistant.message_delta"
	AssistantReasoning      SessionEventType = "assistant.reasoning"
	AssistantReasoningDelta SessionEventType = "assistant.reasoning_delta"
	AssistantTurnStart      SessionEventType = "assistant.turn_start"
	AssistantTurnEnd        SessionEventType = "assistant.turn_end"
	AssistantUsage          SessionEventType = "assistant.usage"

	ToolExecutionStart         SessionEventType = "tool.execution_start"
	ToolExecutionProgress      SessionEventType = "tool.execution_progress"
	ToolExecutionPartialResult SessionEventType = "tool.execution_partial_result"
	ToolExecutionComplete      SessionEventType = "tool.execution_complete"
	ToolUserRequested          SessionEventType = "tool.user_requested"

	SubagentStarted   SessionEventType = "subagent.started"
	SubagentSelected  SessionEventType = "subagent.selected"
	SubagentCompleted SessionEventType = "subagent.completed"
	SubagentFailed    SessionEventType = "subagent.failed"

	HookStart SessionEventType = "hook.start"
	HookEnd   SessionEventType = "hook.end"

	PendingMessagesModified SessionEventType = "pending_messages.modified"

	// SessionEventUnknown is substituted for event types this SDK version
	// does not know about. Newer CLIs may emit new types at any time, so
	// parsing must never fail on them.
	SessionEventUnknown SessionEventType = "unknown"
)

// knownEventTypes is consulted when decoding incoming events.
var knownEventTypes = map[SessionEventType]bool{
	SessionStart: true, SessionResume: true, SessionIdle: true,
	SessionError: true, SessionInfo: true, SessionHandoff: true,
	SessionModelChange: true, SessionTruncation: true, SessionUsageInfo: true,
	SessionCompactionStart: true, SessionCompactionComplete: true,
	UserMessage: true, SystemMessage: true, Abort: true,
	AssistantIntent: true, AssistantMessage: true, AssistantMessageDelta: true,
	AssistantReasoning: true, AssistantReasoningDelta: true,
	AssistantTurnStart: true, AssistantTurnEnd: true, AssistantUsage: true,
	ToolExecutionStart: true, ToolExecutionProgress: true,
	ToolExecutionPartialResult: true, ToolExecutionComplete: true,
	ToolUserRequested: true,
	SubagentStarted:   true, SubagentSelected: true, SubagentCompleted: true,
	SubagentFailed: true,
	HookStart:      true, HookEnd: true,
	PendingMessagesModified: true,
}

// SessionEvent is a single event from a session's timeline.
type SessionEvent struct {
	ID        string           `json:"id"`
	Type      SessionEventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	ParentID  *string          `json:"parentId,omitempty"`
	Ephemeral *bool            `json:"ephemeral,omitempty"`
	Data      EventData        `json:"data"`
}

// UnmarshalJSON maps unrecognized event types to SessionEventUnknown while
// keeping the raw type string in Data.RawType for diagnostics.
func (e *SessionEvent) UnmarshalJSON(b []byte) error {
	type alias SessionEvent
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	*e = SessionEvent(a)
	if !knownEventTypes[e.Type] {
		e.Data.RawType = string(e.Type)
		e.Type = SessionEventUnknown
	}
	return nil
}

// EventData carries the payload of a session event. The wire schema is a
// union keyed by event type; this struct flattens it, so only the fields
// relevant to a given Type are populated.
type EventData struct {
	// session.start / session.resume
	SessionID      *string    `json:"sessionId,omitempty"`
	SelectedModel  *string    `json:"selectedModel,omitempty"`
	CopilotVersion *string    `json:"copilotVersion,omitempty"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	ResumeTime     *time.Time `json:"resumeTime,omitempty"`
	EventCount     *float64   `json:"eventCount,omitempty"`

	// assistant.message / user.message / system.message
	Content   *string `json:"content,omitempty"`
	MessageID *string `json:"messageId,omitempty"`
	Role      *string `json:"role,omitempty"`

	// assistant.message_delta / assistant.reasoning_delta
	DeltaContent *string `json:"deltaContent,omitempty"`

	// session.error / session.info
	ErrorType *string `json:"errorType,omitempty"`
	Message   *string `json:"message,omitempty"`
	InfoType  *string `json:"infoType,omitempty"`
	Stack     *string `json:"stack,omitempty"`

	// session.model_change
	NewModel      *string `json:"newModel,omitempty"`
	PreviousModel *string `json:"previousModel,omitempty"`

	// tool.* events
	ToolName        *string         `json:"toolName,omitempty"`
	ToolCallID      *string         `json:"toolCallId,omitempty"`
	Arguments       json.RawMessage `json:"arguments,omitempty"`
	PartialOutput   *string         `json:"partialOutput,omitempty"`
	ProgressMessage *string         `json:"progressMessage,omitempty"`
	Success         *bool           `json:"success,omitempty"`
	Result          *ToolResultData `json:"result,omitempty"`
	Error           *EventError     `json:"error,omitempty"`

	// assistant.usage
	Model           *string  `json:"model,omitempty"`
	InputTokens     *float64 `json:"inputTokens,omitempty"`
	OutputTokens    *float64 `json:"outputTokens,omitempty"`
	CacheReadTokens *float64 `json:"cacheReadTokens,omitempty"`
	Cost            *float64 `json:"cost,omitempty"`
	Duration        *float64 `json:"duration,omitempty"`

	// session.usage_info
	CurrentTokens  *float64                 `json:"currentTokens,omitempty"`
	TokenLimit     *float64                 `json:"tokenLimit,omitempty"`
	MessagesLength *float64                 `json:"messagesLength,omitempty"`
	QuotaSnapshots map[string]QuotaSnapshot `json:"quotaSnapshots,omitempty"`

	// session.compaction_* / session.truncation
	Summary              *string  `json:"summary,omitempty"`
	MessagesRemoved      *float64 `json:"messagesRemoved,omitempty"`
	PreCompactionTokens  *float64 `json:"preCompactionTokens,omitempty"`
	PostCompactionTokens *float64 `json:"postCompactionTokens,omitempty"`

	// subagent.*
	AgentName        *string `json:"agentName,omitempty"`
	AgentDisplayName *string `json:"agentDisplayName,omitempty"`
	AgentDescription *string `json:"agentDescription,omitempty"`

	// hook.start / hook.end
	HookType *string `json:"hookType,omitempty"`

	// RawType preserves the wire value of unrecognized event types.
	RawType string `json:"-"`
}

// ToolResultData is the recorded output of a completed tool execution.
type ToolResultData struct {
	Content string `json:"content"`
}

// ErrorClass is a structured error in event payloads.
type ErrorClass struct {
	Code    *string `json:"code,omitempty"`
	Message string  `json:"message"`
	Stack   *string `json:"stack,omitempty"`
}

// EventError is either a bare string or a structured error on the wire.
type EventError struct {
	ErrorClass *ErrorClass
	Text       string
}

func (e *EventError) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		e.Text = s
		return nil
	}
	var class ErrorClass
	if err := json.Unmarshal(b, &class); err != nil {
		return err
	}
	e.ErrorClass = &class
	return nil
}

func (e EventError) MarshalJSON() ([]byte, error) {
	if e.ErrorClass != nil {
		return json.Marshal(e.ErrorClass)
	}
	return json.Marshal(e.Text)
}

// String returns the human-readable error text regardless of wire shape.
func (e *EventError) String() string {
	if e.ErrorClass != nil {
		return e.ErrorClass.Message
	}
	return e.Text
}

// QuotaSnapshot reports remaining entitlement for one quota bucket.
type QuotaSnapshot struct {
	EntitlementRequests               float64    `json:"entitlementRequests"`
	UsedRequests                      float64    `json:"usedRequests"`
	RemainingPercentage               float64    `json:"remainingPercentage"`
	Overage                           float64    `json:"overage"`
	IsUnlimitedEntitlement            bool       `json:"isUnlimitedEntitlement"`
	OverageAllowedWithExhaustedQuota  bool       `json:"overageAllowedWithExhaustedQuota"`
	UsageAllowedWithExhaustedQuota    bool       `json:"usageAllowedWithExhaustedQuota"`
	ResetDate                         *time.Time `json:"resetDate,omitempty"`
}
