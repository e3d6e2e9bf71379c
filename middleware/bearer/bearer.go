package bearer

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-guard"
)

var (
	defaultTokenLookup         = "header:" + fiber.HeaderAuthorization
	ErrTokenMissingOrMalformed = errors.New("missing or malformed token")
)

// Authenticator verifies a raw token. *auth.Authenticator satisfies it.
type Authenticator interface {
	Authenticate(token string) (*auth.Session, error)
}

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   func(*fiber.Ctx, error) error
	Authenticator  Authenticator
	// ContextKey is the fiber locals key holding the *auth.Session
	ContextKey  string
	TokenLookup string
	AuthScheme  string
	// RequiredRole specifies an exact role that must be present
	RequiredRole string
	// MinimumRole specifies the minimum role level required
	MinimumRole string
	// ContextEnricher propagates the session to the request user context.
	// Defaults to auth.WithSessionContext.
	ContextEnricher func(ctx context.Context, session *auth.Session) context.Context
}

// New returns a fiber handler that rejects requests without a valid
// bearer token and stores the session in locals otherwise.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		session, err := cfg.Authenticator.Authenticate(raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if err := performAuthorizationChecks(session, cfg); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, session)
		c.SetUserContext(cfg.ContextEnricher(c.UserContext(), session))

		return cfg.SuccessHandler(c)
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Authenticator == nil {
		panic("AUTH: bearer middleware configuration: Authenticator is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = auth.WithSessionContext
	}

	return cfg
}

func defaultErrorHandler(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrTokenMissingOrMalformed):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "No token provided",
		})
	case auth.IsAuthError(err, auth.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "forbidden",
		})
	default:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid or expired token",
			"code":    auth.AuthErrorKind(err),
		})
	}
}

// performAuthorizationChecks applies RequiredRole and MinimumRole
func performAuthorizationChecks(session *auth.Session, cfg Config) error {
	if cfg.RequiredRole != "" && !session.HasRole(cfg.RequiredRole) {
		return auth.ErrForbidden
	}
	if cfg.MinimumRole != "" && !session.IsAtLeast(cfg.MinimumRole) {
		return auth.ErrForbidden
	}
	return nil
}

// GetSession reads the session from fiber locals
func GetSession(c *fiber.Ctx, key string) (*auth.Session, bool) {
	if key == "" {
		key = "user"
	}
	session, ok := c.Locals(key).(*auth.Session)
	return session, ok && session != nil
}

func ExtractRawToken(c *fiber.Ctx, extractors []TokenExtractor) (string, error) {
	var raw string
	var err error = ErrTokenMissingOrMalformed

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

type TokenExtractor func(c *fiber.Ctx) (string, error)

// GetExtractors parses a lookup such as "header:Authorization,cookie:jwt,query:token"
func GetExtractors(tokenLookup string, authScheme string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}

		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

// tokenFromHeader extracts "<scheme> <token>" from header
func tokenFromHeader(header string, authScheme string) TokenExtractor {
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			if token := strings.TrimSpace(a[l+1:]); token != "" {
				return token, nil
			}
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
