package copilot

// SystemMessageConfig customizes the session's system message.
type SystemMessageConfig struct {
	// Mode is "append" (add to the default system message) or "replace".
	Mode string `json:"mode,omitempty"`
	// Content is the system message text.
	Content string `json:"content,omitempty"`
}

// MCPServerConfig describes one MCP server by reference. It is a free-form
// map because the CLI owns the schema and extends it between releases;
// common keys are "type" ("local", "http", "sse"), "command", "args",
// "env", "url", "headers", "tools", and "timeout".
type MCPServerConfig map[string]any

// AzureProviderOptions carries Azure-specific provider settings.
type AzureProviderOptions struct {
	// APIVersion of the Azure OpenAI deployment (default "2024-10-21").
	APIVersion string `json:"apiVersion,omitempty"`
}

// ProviderConfig points the session at a custom model provider (BYOK).
type ProviderConfig struct {
	// Type is "openai", "azure", or "anthropic" (default "openai").
	Type string `json:"type,omitempty"`
	// WireAPI selects "completions" or "responses" for openai/azure.
	WireAPI string `json:"wireApi,omitempty"`
	// BaseURL is the provider endpoint.
	BaseURL string `json:"baseUrl"`
	// APIKey authenticates requests. Optional for local providers.
	APIKey string `json:"apiKey,omitempty"`
	// BearerToken is an alternative to APIKey.
	BearerToken string `json:"bearerToken,omitempty"`
	// Azure holds Azure-specific options.
	Azure *AzureProviderOptions `json:"azure,omitempty"`
}

// CustomAgentConfig defines an agent profile the model can hand work to.
type CustomAgentConfig struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	// Tools restricts the agent to the named tools; nil allows all.
	Tools  []string `json:"tools,omitempty"`
	Prompt string   `json:"prompt"`
	// MCPServers are servers available only to this agent.
	MCPServers map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	// Infer makes the agent selectable by model inference.
	Infer *bool `json:"infer,omitempty"`
}

// InfiniteSessionConfig tunes the CLI's background compaction so sessions
// never hit the context window.
type InfiniteSessionConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// BackgroundCompactionThreshold is the context-window fraction at which
	// background compaction starts (e.g. 0.80).
	BackgroundCompactionThreshold *float64 `json:"backgroundCompactionThreshold,omitempty"`
	// BufferExhaustionThreshold is the fraction at which sends block until
	// compaction catches up (e.g. 0.95).
	BufferExhaustionThreshold *float64 `json:"bufferExhaustionThreshold,omitempty"`
}

// SessionConfig configures a new session. The zero value (or nil) asks the
// CLI for its defaults.
type SessionConfig struct {
	// SessionID requests a specific ID instead of a generated one.
	SessionID string `json:"sessionId,omitempty"`
	// Model to use for this session.
	Model string `json:"model,omitempty"`
	// ConfigDir overrides the CLI configuration directory.
	ConfigDir string `json:"configDir,omitempty"`
	// SystemMessage customizes the system message.
	SystemMessage *SystemMessageConfig `json:"systemMessage,omitempty"`
	// AvailableTools, when non-nil, is the complete allow-list of built-in
	// tools. An empty (non-nil) slice disables all built-in tools.
	AvailableTools []string `json:"availableTools,omitempty"`
	// ExcludedTools disables the named tools, keeping the rest.
	ExcludedTools []string `json:"excludedTools,omitempty"`
	// Streaming enables assistant.message_delta / assistant.reasoning_delta
	// events.
	Streaming bool `json:"streaming,omitempty"`
	// Provider routes model calls to a custom backend (BYOK).
	Provider *ProviderConfig `json:"provider,omitempty"`
	// MCPServers configures MCP tool providers for the session.
	MCPServers map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	// CustomAgents defines agent profiles for the session.
	CustomAgents []CustomAgentConfig `json:"customAgents,omitempty"`
	// SkillDirectories are loaded for SKILL.md skill definitions.
	SkillDirectories []string `json:"skillDirectories,omitempty"`
	// DisabledSkills suppresses skills by name.
	DisabledSkills []string `json:"disabledSkills,omitempty"`
	// InfiniteSessions tunes background compaction.
	InfiniteSessions *InfiniteSessionConfig `json:"infiniteSessions,omitempty"`
	// ReasoningEffort is "low", "medium", or "high" for models that support it.
	ReasoningEffort string `json:"reasoningEffort,omitempty"`

	// Tools are caller-implemented tools exposed to the CLI. Executed
	// in-process when the CLI calls back.
	Tools []Tool `json:"-"`
	// OnPermissionRequest decides tool permission prompts. When nil the CLI
	// default-denies anything that needs permission.
	OnPermissionRequest PermissionHandlerFunc `json:"-"`
	// OnUserInputRequest answers ask-user prompts from the model.
	OnUserInputRequest UserInputHandlerFunc `json:"-"`
	// Hooks intercept session lifecycle points.
	Hooks *SessionHooks `json:"-"`
}

// ResumeSessionConfig carries the per-resume subset of SessionConfig.
// Skills, tools, providers, and callbacks are not persisted with the
// session, so they must be supplied again on resume.
type ResumeSessionConfig struct {
	Streaming        bool                       `json:"streaming,omitempty"`
	Provider         *ProviderConfig            `json:"provider,omitempty"`
	MCPServers       map[string]MCPServerConfig `json:"mcpServers,omitempty"`
	CustomAgents     []CustomAgentConfig        `json:"customAgents,omitempty"`
	SkillDirectories []string                   `json:"skillDirectories,omitempty"`
	DisabledSkills   []string                   `json:"disabledSkills,omitempty"`

	Tools               []Tool                `json:"-"`
	OnPermissionRequest PermissionHandlerFunc `json:"-"`
	OnUserInputRequest  UserInputHandlerFunc  `json:"-"`
	Hooks               *SessionHooks         `json:"-"`
}

// Attachment references a file or directory sent along with a prompt.
type Attachment struct {
	// Type is "file" or "directory".
	Type string `json:"type"`
	// Path to the file or directory.
	Path *string `json:"path,omitempty"`
	// DisplayName shown in the transcript.
	DisplayName string `json:"displayName,omitempty"`
}

// MessageOptions describes one message to send to a session.
type MessageOptions struct {
	// Prompt is the user message text.
	Prompt string `json:"prompt"`
	// Attachments are files or directories to include.
	Attachments []Attachment `json:"attachments,omitempty"`
	// Mode is the delivery mode (default "enqueue").
	Mode string `json:"mode,omitempty"`
}

// SessionMetadata summarizes a persisted session, as returned by ListSessions.
type SessionMetadata struct {
	SessionID string `json:"sessionId"`
}

// PingResponse is returned by Client.Ping.
type PingResponse struct {
	Message         string `json:"message"`
	Timestamp       int64  `json:"timestamp"`
	ProtocolVersion *int   `json:"protocolVersion,omitempty"`
}
