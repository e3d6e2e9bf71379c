package auth

import (
	"context"
	"time"
)

// SecurityEventType enumerates supported security events.
type SecurityEventType string

const (
	EventLoginSucceeded SecurityEventType = "auth.login.success"
	EventLoginFailed    SecurityEventType = "auth.login.failure"
)

// SecurityEvent captures what a notifier needs to describe a login.
type SecurityEvent struct {
	Type          SecurityEventType
	Identity      string
	SourceAddress string
	UserAgent     string
	Device        DeviceInfo
	Attempts      int
	Locked        bool
	OccurredAt    time.Time
}

// Escalated reports whether a failure reached the lock threshold
func (e SecurityEvent) Escalated(threshold int) bool {
	if e.Type != EventLoginFailed {
		return false
	}
	if threshold <= 0 {
		threshold = DefaultLockThreshold
	}
	return e.Locked || e.Attempts >= threshold
}

// Notifier delivers security events to an external channel.
type Notifier interface {
	Notify(ctx context.Context, event SecurityEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event SecurityEvent) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event SecurityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, SecurityEvent) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}
