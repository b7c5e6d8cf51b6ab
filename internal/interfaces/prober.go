package interfaces

import (
	"context"
	"time"
)

// HandshakeResult describes a completed gateway API handshake.
type HandshakeResult struct {
	// ServerVersion is the protocol version the gateway announced.
	ServerVersion int
	// ConnectionTime is the raw connection timestamp from the gateway hello.
	ConnectionTime string
	// Elapsed is how long the handshake took end to end.
	Elapsed time.Duration
}

// GatewayProber checks reachability of a gateway's API socket.
// The production implementation speaks the gateway wire protocol; tests
// substitute canned results.
type GatewayProber interface {
	// Probe dials address (host:port) and performs the API handshake.
	// Connectivity failures classify as transient so callers can requeue.
	Probe(ctx context.Context, address string) (*HandshakeResult, error)
}
