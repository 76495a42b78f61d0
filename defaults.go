package copilot

import "time"

// Protocol and transport defaults.
const (
	// SDKProtocolVersion is sent in the initialize request. The CLI rejects
	// clients whose protocol version it does not support.
	SDKProtocolVersion = 1

	// DefaultCLIPath is the executable looked up on PATH when ClientOptions
	// does not name one.
	DefaultCLIPath = "copilot"

	// DefaultLogLevel is passed to `copilot serve --log-level` by default.
	DefaultLogLevel = "error"

	// DefaultSendTimeout bounds SendAndWait when the caller's context has
	// no deadline of its own.
	DefaultSendTimeout = 60 * time.Second

	// DefaultStopTimeout is how long Stop waits for the CLI process to exit
	// after closing the connection before killing it.
	DefaultStopTimeout = 5 * time.Second

	// connectAttempts bounds the TCP dial retries while the freshly spawned
	// CLI server is still binding its port.
	connectAttempts = 5
)
