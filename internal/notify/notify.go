// Package notify delivers human-facing audit notifications.
//
// Notifications are fire-and-forget from the engine's point of view: Send
// returns an error so callers can log it, but nothing in a cycle depends on
// delivery succeeding.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Field is one labelled value in a notification.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a notification title plus ordered fields.
type Message struct {
	Title  string
	Fields []Field
}

// Value returns the first field named name, or "".
func (m Message) Value(name string) string {
	for _, f := range m.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Notifier sends a message somewhere a human will see it.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier over logger, or the default logger if nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	attrs := make([]any, 0, len(msg.Fields)+1)
	attrs = append(attrs, "title", msg.Title)
	for _, f := range msg.Fields {
		attrs = append(attrs, slog.String(f.Name, f.Value))
	}
	n.logger.InfoContext(ctx, "notification", attrs...)
	return nil
}

// Multi fans a message out to every notifier. All are attempted; errors are
// joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
