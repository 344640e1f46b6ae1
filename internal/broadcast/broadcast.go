// Package broadcast provides the per-match, best-effort pub/sub topic
// the two clients mirror readiness signals and mix attempts over.
package broadcast

import (
	"context"
	"encoding/json"
)

// Handler receives the raw payload of one delivered event.
type Handler func(payload json.RawMessage)

// Channel is one open topic. Sends are fire-and-forget; delivery to
// the other side is best-effort by design.
type Channel interface {
	Send(ctx context.Context, event string, payload any) error
	// OnEvent registers a handler for an event name and returns a func
	// that unregisters it.
	OnEvent(event string, fn Handler) func()
	Close() error
}

// Broadcaster opens topics. Both sides of a match open the same topic
// name; whoever opens first creates it.
type Broadcaster interface {
	Open(topic string) (Channel, error)
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}
