package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultNotifyTimeout bounds one delivery attempt
const DefaultNotifyTimeout = 5 * time.Second

// Dispatcher hands security events to a Notifier without blocking the
// caller. Each event gets exactly one delivery attempt on its own goroutine
// with its own timeout. Failures are logged and counted, never returned.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   Logger

	mu      sync.RWMutex
	wg      sync.WaitGroup
	closed  bool
	sent    atomic.Uint64
	failed  atomic.Uint64
	enabled bool
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithNotifyTimeout sets the per-event delivery timeout
func WithNotifyTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(l Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = normalizeLogger(l)
	}
}

// NewDispatcher returns a dispatcher. A nil notifier disables delivery.
func NewDispatcher(notifier Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier: normalizeNotifier(notifier),
		timeout:  DefaultNotifyTimeout,
		logger:   defLogger(),
		enabled:  notifier != nil,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	return d
}

// Enabled reports whether events are delivered anywhere
func (d *Dispatcher) Enabled() bool {
	return d != nil && d.enabled
}

// Dispatch starts delivery of event and returns immediately. The request
// context only contributes its values; its cancellation does not abort the
// delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, event SecurityEvent) {
	if !d.Enabled() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	detached := context.WithoutCancel(ctx)

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(detached, event)
	}()
}

func (d *Dispatcher) deliver(parent context.Context, event SecurityEvent) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("notifier panicked", "event", event.Type, "panic", fmt.Sprint(r))
		}
	}()

	if err := d.notifier.Notify(ctx, event); err != nil {
		d.failed.Add(1)
		d.logger.Warn("security notification not delivered",
			"event", event.Type,
			"identity", event.Identity,
			"error", wrapSentinel(ErrNotificationDeliveryFailed, err, nil),
		)
		return
	}

	d.sent.Add(1)
	d.logger.Debug("security notification delivered", "event", event.Type, "identity", event.Identity)
}

// Wait blocks until in-flight deliveries finish or ctx ends
func (d *Dispatcher) Wait(ctx context.Context) error {
	if d == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits for in-flight deliveries
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Wait(ctx)
}

// Sent returns the number of delivered events
func (d *Dispatcher) Sent() uint64 {
	return d.sent.Load()
}

// Failed returns the number of events that could not be delivered
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}
