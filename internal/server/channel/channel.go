// Package channel is the boundary to remote development environments.
// The engine treats it as a fallible, possibly slow RPC surface:
// connections can be silently invalidated, commands can hang, and the
// caller's state must never depend on the remote peer indefinitely.
package channel

import "context"

// Channel runs commands inside a remote development environment
// identified by an opaque env handle.
type Channel interface {
	// EnsureSession makes sure a persistent multiplexed session exists
	// for the environment, so commands survive connection churn.
	EnsureSession(ctx context.Context, envHandle string) error
	// RunCommand executes command in the environment, streaming output
	// chunks to onOutput as they arrive, and returns the command's exit
	// code. onOutput may be nil.
	RunCommand(ctx context.Context, envHandle, command string, onOutput func(chunk []byte)) (int, error)
}

// outputWriter adapts an onOutput callback to io.Writer.
type outputWriter struct {
	fn func(chunk []byte)
}

func (w outputWriter) Write(p []byte) (int, error) {
	if w.fn != nil && len(p) > 0 {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		w.fn(chunk)
	}
	return len(p), nil
}
