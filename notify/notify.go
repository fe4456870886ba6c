// Package notify delivers operator-facing text messages over incoming
// webhooks. Delivery is fire-and-forget: failures are logged and never
// retried, and a dead channel never blocks a worker.
package notify

import (
	"context"
)

type Notifier interface {
	Send(ctx context.Context, msg string)
}

// Multi fans one message out to several channels.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg string) {
	for _, n := range m {
		n.Send(ctx, msg)
	}
}

// Null is used when no webhook is configured.
type Null struct{}

func (Null) Send(ctx context.Context, msg string) {}

// Capture records messages for tests.
type Capture struct {
	Messages []string
}

func (c *Capture) Send(ctx context.Context, msg string) {
	c.Messages = append(c.Messages, msg)
}
