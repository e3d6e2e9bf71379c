package auth

import (
	stderrors "errors"
	"net/http"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeAccountLocked        = "ACCOUNT_LOCKED"
	TextCodeLoginThrottled       = "LOGIN_THROTTLED"
	TextCodeTokenInvalid         = "TOKEN_INVALID"
	TextCodeStoreUnavailable     = "STORE_UNAVAILABLE"
	TextCodeConfigurationMissing = "CONFIGURATION_MISSING"
	TextCodeNotificationFailed   = "NOTIFICATION_FAILED"
	TextCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	TextCodeAccountExists        = "ACCOUNT_EXISTS"
	TextCodeInvalidRequest       = "INVALID_REQUEST"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeEmptyPassword        = "EMPTY_PASSWORD"
)

// ErrInvalidCredentials is returned for an unknown identity and for a wrong
// password alike, so callers cannot tell which one happened.
var ErrInvalidCredentials = errors.New("unauthorized", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrAccountLocked is returned while an identity is inside its lockout window.
var ErrAccountLocked = errors.New("account temporarily locked", errors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(http.StatusTooManyRequests)

// ErrLoginThrottled is returned when enough attempts for an identity are
// already in flight to reach the lock threshold.
var ErrLoginThrottled = errors.New("too many login attempts in progress", errors.CategoryRateLimit).
	WithTextCode(TextCodeLoginThrottled).
	WithCode(http.StatusTooManyRequests)

// ErrTokenInvalid collapses malformed, expired and badly signed tokens.
var ErrTokenInvalid = errors.New("invalid or expired token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(errors.CodeUnauthorized)

// ErrStoreUnavailable is a retryable failure to reach the backing store.
var ErrStoreUnavailable = errors.New("store unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(http.StatusServiceUnavailable)

// ErrConfigurationMissing is fatal at startup.
var ErrConfigurationMissing = errors.New("required configuration missing", errors.CategoryBadInput).
	WithTextCode(TextCodeConfigurationMissing).
	WithCode(errors.CodeInternal)

// ErrNotificationDeliveryFailed is logged by the dispatcher and never surfaced.
var ErrNotificationDeliveryFailed = errors.New("notification delivery failed", errors.CategoryOperation).
	WithTextCode(TextCodeNotificationFailed).
	WithCode(errors.CodeInternal)

// ErrAccountNotFound is returned by stores when no account matches.
var ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(errors.CodeNotFound)

// ErrAccountExists is returned by stores on a duplicate identity.
var ErrAccountExists = errors.New("account already exists", errors.CategoryConflict).
	WithTextCode(TextCodeAccountExists).
	WithCode(errors.CodeConflict)

// ErrInvalidLoginRequest is returned when a login payload misses fields.
var ErrInvalidLoginRequest = errors.New("invalid login request", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(errors.CodeBadRequest)

// ErrForbidden is returned when a valid session lacks the required role.
var ErrForbidden = errors.New("forbidden", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// wrapSentinel clones base and records err as its source so callers can
// still match on the sentinel text code while logs keep the cause.
func wrapSentinel(base *errors.Error, err error, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	if len(meta) > 0 {
		clone.WithMetadata(meta)
	}
	return clone
}

// IsAuthError reports whether err carries the same text code as target.
func IsAuthError(err error, target *errors.Error) bool {
	if err == nil || target == nil {
		return false
	}

	var richErr *errors.Error
	if target.TextCode == "" || !errors.As(err, &richErr) {
		return stderrors.Is(err, target)
	}

	return richErr.TextCode == target.TextCode
}

// AuthErrorKind returns the text code carried by err, or "" for errors
// outside the taxonomy.
func AuthErrorKind(err error) string {
	var richErr *errors.Error
	if err == nil || !errors.As(err, &richErr) {
		return ""
	}
	return richErr.TextCode
}

// IsRetryable reports whether the caller may retry the same request later.
func IsRetryable(err error) bool {
	return IsAuthError(err, ErrStoreUnavailable)
}

// HTTPStatus maps err to the status code returned to API clients.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}

	return http.StatusInternalServerError
}
