// Package copilot provides a Go client for the Copilot CLI.
//
// The SDK spawns the CLI in server mode (or connects to an already running
// server), speaks JSON-RPC 2.0 to it, and exposes typed sessions, events,
// and callback registration. All model traffic, tool execution policy, and
// session persistence are owned by the CLI process; this package is the
// client-side plumbing.
//
// # Quick Start
//
//	client := copilot.NewClient(nil)
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//
//	session, err := client.CreateSession(ctx, &copilot.SessionConfig{Model: "gpt-4.1"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Destroy()
//
//	response, err := session.SendAndWait(ctx, copilot.MessageOptions{Prompt: "What is 2 + 2?"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(*response.Data.Content)
//
// # Sub-packages
//
//   - skills discovers and validates skill directories and can watch them
//     for changes.
//   - usage aggregates token and quota accounting from session events.
package copilot
