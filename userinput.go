package copilot

// UserInputRequest is the model asking the user a question via the
// ask-user tool.
type UserInputRequest struct {
	// Question text to present.
	Question string `json:"question"`
	// Choices offered to the user, when the model provided any.
	Choices []string `json:"choices,omitempty"`
	// AllowFreeform permits an answer outside Choices.
	AllowFreeform bool `json:"allowFreeform,omitempty"`
}

// UserInputInvocation carries the context of a user-input prompt.
type UserInputInvocation struct {
	SessionID string `json:"sessionId"`
}

// UserInputResponse is the answer returned to the model.
type UserInputResponse struct {
	Answer string `json:"answer"`
	// WasFreeform reports that Answer is not one of the offered Choices.
	WasFreeform bool `json:"wasFreeform,omitempty"`
}

// UserInputHandlerFunc answers ask-user prompts for a session. When no
// handler is configured the request fails and the model is told the client
// cannot ask the user.
type UserInputHandlerFunc func(req UserInputRequest, inv UserInputInvocation) (UserInputResponse, error)
