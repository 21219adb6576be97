// Package adapter defines the contract between the server and the protocol
// front ends that expose the virtual filesystem.
package adapter

import "context"

// Adapter is one protocol front end managed by server.Server.
//
// Lifecycle:
//  1. Creation: the adapter is built with its configuration and the shared
//     filesystem
//  2. Startup: Serve starts listening and blocks until shutdown
//  3. Shutdown: Stop drains in-flight requests within the context deadline
//
// Thread safety:
// Stop may be called concurrently with Serve and more than once.
type Adapter interface {
	// Serve starts the protocol server and blocks until ctx is cancelled or
	// the server fails.
	//
	// Returns:
	//   - nil or context.Canceled on graceful shutdown
	//   - error if the listener could not start or failed while serving
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It is idempotent.
	Stop(ctx context.Context) error

	// Protocol returns a constant name for logs and metrics, e.g. "HTTP".
	Protocol() string

	// Port returns the configured listening port.
	Port() int
}
