package adapter

import (
	"context"
)

// Adapter is a protocol server managed by server.FileshareServer.
//
// Lifecycle:
//  1. Creation: the adapter is built with its configuration and collaborators
//  2. Startup: Serve() starts the protocol server and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown bounded by its context
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Let idle sessions notice the shutdown and close
	//   - Wait for active commands to complete (with timeout)
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other components.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It must be idempotent and safe to call
	// concurrently with Serve(). When ctx expires, remaining connections are
	// force-closed.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter is listening on, or the configured
	// port before Serve() has bound it.
	Port() int
}
