package origin

import (
	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-guard"
)

// Guard decides whether an origin may call the API and writes the CORS
// headers. *auth.OriginGuard satisfies it.
type Guard interface {
	Guard(origin string, sink auth.HeaderSink) bool
}

// GuardFunc adapts a function to Guard
type GuardFunc func(origin string, sink auth.HeaderSink) bool

func (f GuardFunc) Guard(origin string, sink auth.HeaderSink) bool {
	return f(origin, sink)
}

type Config struct {
	Filter func(*fiber.Ctx) bool
	Guard  Guard
	// RejectHandler answers requests from disallowed origins
	RejectHandler fiber.Handler
	// PreflightStatus is returned for allowed OPTIONS requests
	PreflightStatus int
}

// New applies the origin guard to every request. Preflight requests are
// answered directly; disallowed origins are rejected.
func New(config ...Config) fiber.Handler {
	cfg := configDefault(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		allowed := cfg.Guard.Guard(c.Get(fiber.HeaderOrigin), c)
		if !allowed {
			return cfg.RejectHandler(c)
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(cfg.PreflightStatus)
		}

		return c.Next()
	}
}

func configDefault(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Guard == nil {
		panic("AUTH: origin middleware configuration: Guard is required.")
	}

	if cfg.RejectHandler == nil {
		cfg.RejectHandler = func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "origin not allowed",
			})
		}
	}

	if cfg.PreflightStatus == 0 {
		cfg.PreflightStatus = fiber.StatusNoContent
	}

	return cfg
}

// FromAuthenticator guards with the authenticator's allow-list
func FromAuthenticator(a *auth.Authenticator) Guard {
	return GuardFunc(a.GuardOrigin)
}
