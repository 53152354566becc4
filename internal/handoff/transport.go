package handoff

import (
	"context"

	"eirbridge/internal/models"
)

// Envelope is one inbound peer message tagged with the origin it arrived
// from. Origin is attached by the transport, never by the peer's payload, so
// the manager's origin check cannot be spoofed in-band.
type Envelope struct {
	Origin  string
	Message models.TransferMessage
}

// Surface is the open remote viewer surface: an outbound post channel scoped
// to a target origin, and the stream of inbound peer messages.
type Surface interface {
	// Post sends a message to the peer iff the peer's origin equals
	// targetOrigin. Posting before the peer is reachable is an error the
	// caller is expected to tolerate and retry.
	Post(msg models.TransferMessage, targetOrigin string) error

	// Incoming streams inbound peer messages. The channel closes when the
	// surface closes.
	Incoming() <-chan Envelope

	// Closed reports whether the remote surface has gone away.
	Closed() bool

	// Close tears the surface down.
	Close() error
}

// Transport opens remote viewer surfaces. The production implementation is
// the websocket bridge; tests inject a fake that simulates correct-origin,
// wrong-origin, and malformed peer traffic.
type Transport interface {
	Open(ctx context.Context, url string) (Surface, error)
}
