// Package notify delivers transient user-facing notifications.
//
// Every failure path in the client core surfaces exactly one notification
// with a short title and a human-readable description; no operation fails
// silently. UI layers plug in their own Notifier; the default logs.
package notify

import "go.uber.org/zap"

// Notifier receives transient user-facing messages.
type Notifier interface {
	// Info reports a successful or neutral outcome.
	Info(title, message string)
	// Error reports a failure. Called at most once per failed operation.
	Error(title, message string)
}

// Logger is a Notifier backed by zap, used by headless clients and as
// the default when no UI sink is attached.
type Logger struct {
	log *zap.Logger
}

// NewLogger wraps log as a Notifier.
func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log}
}

func (n *Logger) Info(title, message string) {
	n.log.Info(title, zap.String("detail", message))
}

func (n *Logger) Error(title, message string) {
	n.log.Warn(title, zap.String("detail", message))
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Info(string, string)  {}
func (Nop) Error(string, string) {}
