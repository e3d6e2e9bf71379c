package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is the session token lifetime
const DefaultTokenExpiration = 24 * time.Hour

const bearerScheme = "bearer"

// TokenService issues and verifies HS256 session tokens.
type TokenService struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        clock
}

// TokenServiceOption configures a TokenService
type TokenServiceOption func(*TokenService)

// WithTokenLogger sets the logger used for verification failures
func WithTokenLogger(l Logger) TokenServiceOption {
	return func(ts *TokenService) {
		ts.logger = normalizeLogger(l)
	}
}

// WithTokenClock overrides the time source used to issue and verify tokens
func WithTokenClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if now != nil {
			ts.now = now
		}
	}
}

// NewTokenService builds a TokenService from cfg. An empty signing key is a
// configuration error; there is no fallback secret.
func NewTokenService(cfg Config, opts ...TokenServiceOption) (*TokenService, error) {
	if cfg == nil || strings.TrimSpace(cfg.GetSigningKey()) == "" {
		return nil, wrapSentinel(ErrConfigurationMissing, nil, map[string]any{
			"setting": "signing_key",
		})
	}

	expiration := cfg.GetTokenExpiration()
	if expiration <= 0 {
		expiration = DefaultTokenExpiration
	}

	var aud jwt.ClaimStrings
	if audience := cfg.GetAudience(); len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}

	ts := &TokenService{
		signingKey: []byte(cfg.GetSigningKey()),
		expiration: expiration,
		issuer:     cfg.GetIssuer(),
		audience:   aud,
		logger:     defLogger(),
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// Expiration returns the token lifetime
func (ts *TokenService) Expiration() time.Duration {
	return ts.expiration
}

// Issue mints a token for identity valid for the configured window.
func (ts *TokenService) Issue(identity, role string) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ts.expiration)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   identity,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserRole: role,
	}

	token, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, claims.Expires(), nil
}

// SignClaims signs claims with the configured key
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Verify strips an optional bearer prefix and validates signature, expiry,
// issuer and audience. Every failure surfaces as ErrTokenInvalid; the cause
// is only logged.
func (ts *TokenService) Verify(raw string) (*JWTClaims, error) {
	tokenString := StripBearer(raw)
	if tokenString == "" {
		ts.logger.Debug("token verification failed", "error", "empty token")
		return nil, ErrTokenInvalid
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithExpirationRequired(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		// issued tokens carry every configured audience, verification
		// requires the first one
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Info("token verification failed", "error", err, "expired", errors.Is(err, jwt.ErrTokenExpired))
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Identity() == "" {
		ts.logger.Info("token verification failed", "error", "could not decode claims")
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// StripBearer removes a leading "Bearer " (any case) and surrounding space.
func StripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > len(bearerScheme) && strings.EqualFold(raw[:len(bearerScheme)], bearerScheme) && raw[len(bearerScheme)] == ' ' {
		return strings.TrimSpace(raw[len(bearerScheme)+1:])
	}
	return raw
}
