package copilot

import "errors"

// Sentinel errors returned by client and session operations.
var (
	ErrNotConnected     = errors.New("copilot: client not connected, call Start first")
	ErrAlreadyConnected = errors.New("copilot: client already connected")
	ErrSessionDestroyed = errors.New("copilot: session has been destroyed")
	ErrNoMessageID      = errors.New("copilot: response missing messageId")
	ErrNoSessionID      = errors.New("copilot: response missing sessionId")
	ErrCLIExited        = errors.New("copilot: CLI process exited")
)
