package auth

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultLockThreshold is the number of failures that locks an identity
	DefaultLockThreshold = 5
	// DefaultLockoutWindow is how long a lock lasts, and how long failures
	// are remembered while the identity is not locked
	DefaultLockoutWindow = 15 * time.Minute
	// DefaultReservationTimeout bounds how long an in-flight attempt holds
	// its slot if it is never settled
	DefaultReservationTimeout = time.Minute

	defaultSweepEvery = 1024
)

// AttemptRecord is the per-identity failure counter. Pending counts login
// attempts that reserved a slot and have not been settled yet.
type AttemptRecord struct {
	Failures     int       `json:"failures"`
	Pending      int       `json:"pending,omitempty"`
	FirstFailure time.Time `json:"first_failure,omitempty"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	LockedUntil  time.Time `json:"locked_until,omitempty"`
	ReservedAt   time.Time `json:"reserved_at,omitempty"`
}

// IsZero reports whether the record carries no state
func (r AttemptRecord) IsZero() bool {
	return r.Failures == 0 && r.Pending == 0 && r.LockedUntil.IsZero()
}

// LockedAt reports whether the record is locked at now
func (r AttemptRecord) LockedAt(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// AttemptStatus is the outcome reported to callers
type AttemptStatus struct {
	Locked      bool      `json:"locked"`
	Throttled   bool      `json:"throttled,omitempty"`
	Attempts    int       `json:"attempts"`
	Pending     int       `json:"pending,omitempty"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// RetryAfter returns how long until the lock ends, rounded up to a second
func (s AttemptStatus) RetryAfter(now time.Time) time.Duration {
	if !s.Locked {
		return 0
	}
	d := s.LockedUntil.Sub(now)
	if d <= 0 {
		return 0
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}

// AttemptUpdateFunc computes the next record. Returning a zero record
// deletes the entry.
type AttemptUpdateFunc func(current AttemptRecord) AttemptRecord

// AttemptStore persists attempt records. Update must apply fn atomically
// per key; different keys must not block each other. Records may be
// dropped once ttl has passed since their last update.
type AttemptStore interface {
	Load(ctx context.Context, key string) (AttemptRecord, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn AttemptUpdateFunc) (AttemptRecord, error)
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	record    AttemptRecord
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryAttemptStore keeps records in process memory. State does not
// survive a restart. Expired records are swept every few updates, so
// identities that are never seen again do not accumulate.
type MemoryAttemptStore struct {
	records    *xsync.MapOf[string, memoryEntry]
	now        clock
	sweepEvery uint64
	updates    atomic.Uint64
}

// MemoryAttemptStoreOption configures a MemoryAttemptStore
type MemoryAttemptStoreOption func(*MemoryAttemptStore)

// WithMemoryStoreClock overrides the time source used for expiry
func WithMemoryStoreClock(now func() time.Time) MemoryAttemptStoreOption {
	return func(s *MemoryAttemptStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepEvery sets how many updates happen between expiry sweeps
func WithSweepEvery(n int) MemoryAttemptStoreOption {
	return func(s *MemoryAttemptStore) {
		if n > 0 {
			s.sweepEvery = uint64(n)
		}
	}
}

// NewMemoryAttemptStore returns an empty store
func NewMemoryAttemptStore(opts ...MemoryAttemptStoreOption) *MemoryAttemptStore {
	s := &MemoryAttemptStore{
		records:    xsync.NewMapOf[string, memoryEntry](),
		now:        time.Now,
		sweepEvery: defaultSweepEvery,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load returns the record for key or a zero record
func (s *MemoryAttemptStore) Load(_ context.Context, key string) (AttemptRecord, error) {
	entry, ok := s.records.Load(key)
	if !ok || entry.expired(s.now()) {
		return AttemptRecord{}, nil
	}
	return entry.record, nil
}

// Update applies fn under the key's bucket lock
func (s *MemoryAttemptStore) Update(_ context.Context, key string, ttl time.Duration, fn AttemptUpdateFunc) (AttemptRecord, error) {
	now := s.now()

	var next AttemptRecord
	s.records.Compute(key, func(current memoryEntry, loaded bool) (memoryEntry, bool) {
		if !loaded || current.expired(now) {
			current = memoryEntry{}
		}
		next = fn(current.record)

		entry := memoryEntry{record: next}
		if ttl > 0 {
			entry.expiresAt = now.Add(ttl)
		}
		return entry, next.IsZero()
	})

	if s.updates.Add(1)%s.sweepEvery == 0 {
		s.Sweep()
	}
	return next, nil
}

// Delete removes the record for key
func (s *MemoryAttemptStore) Delete(_ context.Context, key string) error {
	s.records.Delete(key)
	return nil
}

// Sweep drops expired records and returns how many were removed
func (s *MemoryAttemptStore) Sweep() int {
	now := s.now()
	removed := 0
	s.records.Range(func(key string, entry memoryEntry) bool {
		if !entry.expired(now) {
			return true
		}
		s.records.Compute(key, func(current memoryEntry, loaded bool) (memoryEntry, bool) {
			drop := loaded && current.expired(now)
			if drop {
				removed++
			}
			return current, !loaded || drop
		})
		return true
	})
	return removed
}

// Len returns the number of tracked identities
func (s *MemoryAttemptStore) Len() int {
	return s.records.Size()
}

// AttemptTracker enforces the failed login lockout policy. A login
// reserves a slot with Reserve before the password is checked and settles
// it with RecordFailure, RecordSuccess or Release. Reservations count
// against the threshold, so concurrent attempts can never verify more
// passwords than the policy allows.
type AttemptTracker struct {
	store              AttemptStore
	threshold          int
	window             time.Duration
	reservationTimeout time.Duration
	logger             Logger
	now                clock
}

// AttemptTrackerOption configures an AttemptTracker
type AttemptTrackerOption func(*AttemptTracker)

// WithAttemptStore replaces the in-memory store
func WithAttemptStore(store AttemptStore) AttemptTrackerOption {
	return func(t *AttemptTracker) {
		if store != nil {
			t.store = store
		}
	}
}

// WithLockThreshold sets how many failures lock an identity
func WithLockThreshold(n int) AttemptTrackerOption {
	return func(t *AttemptTracker) {
		if n > 0 {
			t.threshold = n
		}
	}
}

// WithLockoutWindow sets the lock duration
func WithLockoutWindow(d time.Duration) AttemptTrackerOption {
	return func(t *AttemptTracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithReservationTimeout sets how long an unsettled reservation holds its
// slot, which matters when a process dies mid login
func WithReservationTimeout(d time.Duration) AttemptTrackerOption {
	return func(t *AttemptTracker) {
		if d > 0 {
			t.reservationTimeout = d
		}
	}
}

// WithTrackerClock overrides the time source
func WithTrackerClock(now func() time.Time) AttemptTrackerOption {
	return func(t *AttemptTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithTrackerLogger sets the logger
func WithTrackerLogger(l Logger) AttemptTrackerOption {
	return func(t *AttemptTracker) {
		t.logger = normalizeLogger(l)
	}
}

// NewAttemptTracker returns a tracker with a 5 failure / 15 minute policy
// unless configured otherwise.
func NewAttemptTracker(opts ...AttemptTrackerOption) *AttemptTracker {
	t := &AttemptTracker{
		threshold:          DefaultLockThreshold,
		window:             DefaultLockoutWindow,
		reservationTimeout: DefaultReservationTimeout,
		logger:             defLogger(),
		now:                time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	if t.store == nil {
		t.store = NewMemoryAttemptStore(WithMemoryStoreClock(t.now))
	}

	return t
}

// Threshold returns the configured failure threshold
func (t *AttemptTracker) Threshold() int {
	return t.threshold
}

// Reserve claims a slot for a login attempt. The returned status is Locked
// inside a lockout window and Throttled when failures plus attempts in
// flight already reach the threshold; in both cases nothing is reserved.
// Otherwise the caller must settle the slot.
func (t *AttemptTracker) Reserve(ctx context.Context, identity string) (AttemptStatus, error) {
	key := NormalizeIdentity(identity)
	now := t.now()

	var status AttemptStatus
	_, err := t.store.Update(ctx, key, t.ttl(), func(current AttemptRecord) AttemptRecord {
		next := t.settle(current, now)
		status = t.status(next, now)
		if status.Locked {
			return next
		}
		if next.Failures+next.Pending >= t.threshold {
			status.Throttled = true
			return next
		}
		next.Pending++
		next.ReservedAt = now
		status.Pending = next.Pending
		return next
	})
	if err != nil {
		return AttemptStatus{}, errors.Wrap(err, errors.CategoryInternal, "failed to reserve login attempt")
	}

	if status.Throttled {
		t.logger.Warn("login attempt throttled", "identity", key, "attempts", status.Attempts, "pending", status.Pending)
	}
	return status, nil
}

// RecordFailure counts a failed attempt, releasing its reservation if it
// holds one, and locks the identity once the threshold is reached.
func (t *AttemptTracker) RecordFailure(ctx context.Context, identity string) (AttemptStatus, error) {
	key := NormalizeIdentity(identity)
	now := t.now()

	rec, err := t.store.Update(ctx, key, t.ttl(), func(current AttemptRecord) AttemptRecord {
		next := release(t.settle(current, now))
		if next.LockedAt(now) {
			next.Failures++
			return next
		}

		next.Failures++
		next.LastFailure = now
		if next.FirstFailure.IsZero() {
			next.FirstFailure = now
		}
		if next.Failures >= t.threshold {
			next.LockedUntil = now.Add(t.window)
		}
		return next
	})
	if err != nil {
		return AttemptStatus{}, errors.Wrap(err, errors.CategoryInternal, "failed to record login failure")
	}

	status := t.status(rec, now)
	if status.Locked && rec.Failures == t.threshold {
		t.logger.Warn("identity locked", "identity", key, "attempts", rec.Failures, "locked_until", rec.LockedUntil)
	}
	return status, nil
}

// RecordSuccess clears the failure counter and releases the reservation.
// A lock set while the attempt was in flight is kept, and the returned
// status reports it so the caller can refuse the login.
func (t *AttemptTracker) RecordSuccess(ctx context.Context, identity string) (AttemptStatus, error) {
	key := NormalizeIdentity(identity)
	now := t.now()

	var status AttemptStatus
	_, err := t.store.Update(ctx, key, t.ttl(), func(current AttemptRecord) AttemptRecord {
		next := release(t.settle(current, now))
		status = t.status(next, now)
		if status.Locked {
			return next
		}
		status.Attempts = 0
		return AttemptRecord{Pending: next.Pending, ReservedAt: next.ReservedAt}
	})
	if err != nil {
		return AttemptStatus{}, errors.Wrap(err, errors.CategoryInternal, "failed to reset login attempts")
	}

	if status.Locked {
		t.logger.Warn("login succeeded after identity was locked", "identity", key, "locked_until", status.LockedUntil)
	}
	return status, nil
}

// Release gives a reservation back without counting the attempt, for
// logins that could not be decided.
func (t *AttemptTracker) Release(ctx context.Context, identity string) error {
	now := t.now()
	_, err := t.store.Update(ctx, NormalizeIdentity(identity), t.ttl(), func(current AttemptRecord) AttemptRecord {
		return release(t.settle(current, now))
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to release login attempt")
	}
	return nil
}

// Reset forgets identity entirely, including any lock
func (t *AttemptTracker) Reset(ctx context.Context, identity string) error {
	if err := t.store.Delete(ctx, NormalizeIdentity(identity)); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to reset login attempts")
	}
	return nil
}

// Status returns the current state of identity
func (t *AttemptTracker) Status(ctx context.Context, identity string) (AttemptStatus, error) {
	now := t.now()
	rec, err := t.store.Load(ctx, NormalizeIdentity(identity))
	if err != nil {
		return AttemptStatus{}, errors.Wrap(err, errors.CategoryInternal, "failed to load login attempts")
	}
	return t.status(t.settle(rec, now), now), nil
}

// IsLocked reports whether identity is inside its lockout window
func (t *AttemptTracker) IsLocked(ctx context.Context, identity string) (bool, error) {
	status, err := t.Status(ctx, identity)
	if err != nil {
		return false, err
	}
	return status.Locked, nil
}

// settle applies expiry on read: an elapsed lock resets the counter,
// unlocked failures older than the window are forgotten and reservations
// older than the reservation timeout are dropped.
func (t *AttemptTracker) settle(rec AttemptRecord, now time.Time) AttemptRecord {
	if rec.Pending > 0 && now.Sub(rec.ReservedAt) >= t.reservationTimeout {
		rec.Pending = 0
		rec.ReservedAt = time.Time{}
	}

	expired := false
	if !rec.LockedUntil.IsZero() {
		expired = !rec.LockedAt(now)
	} else if rec.Failures > 0 && now.Sub(rec.LastFailure) >= t.window {
		expired = true
	}
	if expired {
		return AttemptRecord{Pending: rec.Pending, ReservedAt: rec.ReservedAt}
	}
	return rec
}

func release(rec AttemptRecord) AttemptRecord {
	if rec.Pending > 0 {
		rec.Pending--
	}
	if rec.Pending == 0 {
		rec.ReservedAt = time.Time{}
	}
	return rec
}

func (t *AttemptTracker) status(rec AttemptRecord, now time.Time) AttemptStatus {
	s := AttemptStatus{Attempts: rec.Failures, Pending: rec.Pending}
	if rec.LockedAt(now) {
		s.Locked = true
		s.LockedUntil = rec.LockedUntil
	}
	return s
}

// ttl is how long a store may keep a record before it is meaningless
func (t *AttemptTracker) ttl() time.Duration {
	if t.reservationTimeout > 2*t.window {
		return t.reservationTimeout
	}
	return 2 * t.window
}
