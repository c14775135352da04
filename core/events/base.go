package events

import (
	"log/slog"
	"time"
)

type Kind string

// Event is one inbound occurrence on a transport stream.
type Event interface {
	Kind() Kind
	// ReceivedAt is when the transport decoded the event.
	ReceivedAt() time.Time
}

type Base struct {
	kind       Kind
	receivedAt time.Time
}

func newBase(kind Kind) Base {
	return Base{kind: kind, receivedAt: time.Now()}
}

func (b Base) Kind() Kind            { return b.kind }
func (b Base) ReceivedAt() time.Time { return b.receivedAt }

func (b Base) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(b.kind)),
		slog.Time("received_at", b.receivedAt),
	)
}
