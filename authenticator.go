package auth

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	maxIdentityLength = 254
	maxPasswordLength = 72
)

// Validate runs the login payload rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identity, validation.Required, validation.Length(1, maxIdentityLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordLength)),
	)
}

// Authenticator is the surface the routing layer talks to. It combines the
// connection guard, attempt tracker, hasher, token service, dispatcher and
// origin guard into the login, authenticate and guardOrigin operations.
type Authenticator struct {
	guard      *ConnectionGuard
	tracker    *AttemptTracker
	hasher     PasswordHasher
	tokens     *TokenService
	dispatcher *Dispatcher
	origins    *OriginGuard
	logger     Logger
	now        clock

	dummyOnce sync.Once
	dummyHash string
}

// AuthenticatorOption configures an Authenticator
type AuthenticatorOption func(*Authenticator)

// WithAttemptTracker replaces the default in-memory tracker
func WithAttemptTracker(t *AttemptTracker) AuthenticatorOption {
	return func(a *Authenticator) {
		if t != nil {
			a.tracker = t
		}
	}
}

// WithPasswordHasher replaces the default bcrypt hasher
func WithPasswordHasher(h PasswordHasher) AuthenticatorOption {
	return func(a *Authenticator) {
		if h != nil {
			a.hasher = h
		}
	}
}

// WithDispatcher sets where security events go
func WithDispatcher(d *Dispatcher) AuthenticatorOption {
	return func(a *Authenticator) {
		if d != nil {
			a.dispatcher = d
		}
	}
}

// WithOriginGuard sets the CORS allow-list
func WithOriginGuard(g *OriginGuard) AuthenticatorOption {
	return func(a *Authenticator) {
		if g != nil {
			a.origins = g
		}
	}
}

// WithAuthenticatorLogger sets the logger
func WithAuthenticatorLogger(l Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = normalizeLogger(l)
	}
}

// WithAuthenticatorClock overrides the time source used for events
func WithAuthenticatorClock(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator wires the login flow. guard and tokens are required.
func NewAuthenticator(guard *ConnectionGuard, tokens *TokenService, opts ...AuthenticatorOption) (*Authenticator, error) {
	if guard == nil {
		return nil, wrapSentinel(ErrConfigurationMissing, nil, map[string]any{"component": "connection guard"})
	}
	if tokens == nil {
		return nil, wrapSentinel(ErrConfigurationMissing, nil, map[string]any{"component": "token service"})
	}

	a := &Authenticator{
		guard:      guard,
		tokens:     tokens,
		tracker:    NewAttemptTracker(),
		hasher:     NewBcryptHasher(DefaultPasswordCost),
		dispatcher: NewDispatcher(nil),
		origins:    MustOriginGuard(),
		logger:     defLogger(),
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a, nil
}

// Login checks credentials and returns a signed token. Unknown identities
// and wrong passwords both yield ErrInvalidCredentials. Once the failure
// threshold is reached the identity gets ErrAccountLocked, whatever the
// password, until the lockout window elapses. Each attempt reserves a slot
// in the tracker before the password is checked, so parallel guesses are
// bounded by the same threshold as sequential ones.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, wrapSentinel(ErrInvalidLoginRequest, err, nil)
	}

	identity := NormalizeIdentity(req.Identity)

	status, err := a.tracker.Reserve(ctx, identity)
	if err != nil {
		a.logger.Error("attempt tracker unavailable", "identity", identity, "error", err)
		return nil, wrapSentinel(ErrStoreUnavailable, err, nil)
	}
	switch {
	case status.Locked:
		a.logger.Info("login rejected, identity locked", "identity", identity, "locked_until", status.LockedUntil)
		return nil, lockedError(status)
	case status.Throttled:
		return nil, wrapSentinel(ErrLoginThrottled, nil, map[string]any{"pending": status.Pending})
	}

	// the slot is settled even when the request is cancelled mid flight
	settleCtx := context.WithoutCancel(ctx)

	conn, err := a.guard.Acquire(ctx)
	if err != nil {
		a.release(settleCtx, identity)
		return nil, err
	}

	account, err := conn.FindByIdentity(ctx, identity)
	switch {
	case err == nil:
	case IsAuthError(err, ErrAccountNotFound):
		account = nil
	default:
		a.release(settleCtx, identity)
		a.guard.Reset(ctx, conn, err)
		return nil, wrapSentinel(ErrStoreUnavailable, err, nil)
	}

	if account == nil {
		a.hasher.VerifyPassword(req.Password, a.dummyDigest())
		return nil, a.failed(settleCtx, identity, req)
	}

	if !a.hasher.VerifyPassword(req.Password, account.PasswordHash) {
		return nil, a.failed(settleCtx, identity, req)
	}

	status, err = a.tracker.RecordSuccess(settleCtx, identity)
	if err != nil {
		a.logger.Error("failed to settle login attempt", "identity", identity, "error", err)
		return nil, wrapSentinel(ErrStoreUnavailable, err, nil)
	}
	if status.Locked {
		return nil, lockedError(status)
	}

	token, expiresAt, err := a.tokens.Issue(account.Identity, account.Role)
	if err != nil {
		return nil, err
	}

	a.dispatcher.Dispatch(ctx, a.event(EventLoginSucceeded, req, identity, 0, false))
	a.logger.Info("login succeeded", "identity", identity, "role", account.Role)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  account.Identity,
		Role:      account.Role,
	}, nil
}

func (a *Authenticator) failed(ctx context.Context, identity string, req LoginRequest) error {
	status, err := a.tracker.RecordFailure(ctx, identity)
	if err != nil {
		a.logger.Error("failed to record login failure", "identity", identity, "error", err)
		return wrapSentinel(ErrInvalidCredentials, err, nil)
	}

	a.dispatcher.Dispatch(ctx, a.event(EventLoginFailed, req, identity, status.Attempts, status.Locked))
	a.logger.Info("login failed", "identity", identity, "attempts", status.Attempts, "locked", status.Locked)

	if status.Locked {
		return lockedError(status)
	}
	return ErrInvalidCredentials.Clone()
}

func (a *Authenticator) release(ctx context.Context, identity string) {
	if err := a.tracker.Release(ctx, identity); err != nil {
		a.logger.Warn("failed to release login attempt", "identity", identity, "error", err)
	}
}

func lockedError(status AttemptStatus) error {
	return wrapSentinel(ErrAccountLocked, nil, map[string]any{"locked_until": status.LockedUntil})
}

func (a *Authenticator) event(kind SecurityEventType, req LoginRequest, identity string, attempts int, locked bool) SecurityEvent {
	return SecurityEvent{
		Type:          kind,
		Identity:      identity,
		SourceAddress: req.SourceAddress,
		UserAgent:     req.UserAgent,
		Device:        ParseUserAgent(req.UserAgent),
		Attempts:      attempts,
		Locked:        locked,
		OccurredAt:    a.now(),
	}
}

func (a *Authenticator) dummyDigest() string {
	a.dummyOnce.Do(func() {
		a.dummyHash = RandomPasswordHash(a.hasher)
	})
	return a.dummyHash
}

// Authenticate verifies a token, with or without the bearer prefix
func (a *Authenticator) Authenticate(token string) (*Session, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return claims.Session(), nil
}

// GuardOrigin applies the CORS allow-list to a response
func (a *Authenticator) GuardOrigin(origin string, sink HeaderSink) bool {
	return a.origins.Guard(origin, sink)
}

// LockStatus reports the lockout state of identity
func (a *Authenticator) LockStatus(ctx context.Context, identity string) (AttemptStatus, error) {
	return a.tracker.Status(ctx, identity)
}

// Guard exposes the connection guard for health reporting
func (a *Authenticator) Guard() *ConnectionGuard {
	return a.guard
}

// Close drains in-flight notifications and releases the store connection
func (a *Authenticator) Close(ctx context.Context) error {
	var errs []error
	if err := a.dispatcher.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.guard.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}
