package auth

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// storeRetryAfter is the Retry-After hint sent while the store is down
const storeRetryAfter = 5 * time.Second

// throttleRetryAfter is the Retry-After hint while attempts are in flight
const throttleRetryAfter = time.Second

type AuthControllerRoutes struct {
	Login  string
	Verify string
	Health string
}

// AuthController exposes the Authenticator over HTTP. Origin checks are
// applied by middleware in front of it.
type AuthController struct {
	Debug  bool
	Logger Logger
	Routes *AuthControllerRoutes
	Auther *Authenticator
	now    clock
}

type AuthControllerOption func(*AuthController) *AuthController

// WithAuthenticator sets the authenticator serving the routes
func WithAuthenticator(a *Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = a
		return c
	}
}

// WithControllerLogger sets the controller logger
func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(l)
		return c
	}
}

// WithControllerDebug dumps login payloads and results to the logger
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// WithControllerClock overrides the time source used for Retry-After
func WithControllerClock(now func() time.Time) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if now != nil {
			c.now = now
		}
		return c
	}
}

// WithControllerRoutes overrides route paths. Empty entries keep defaults.
func WithControllerRoutes(routes AuthControllerRoutes) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if routes.Login != "" {
			c.Routes.Login = routes.Login
		}
		if routes.Verify != "" {
			c.Routes.Verify = routes.Verify
		}
		if routes.Health != "" {
			c.Routes.Health = routes.Health
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger(),
		Routes: &AuthControllerRoutes{
			Login:  "/api/auth/login",
			Verify: "/api/auth/verify",
			Health: "/healthz",
		},
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the login, verify and health routes
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Get(controller.Routes.Verify, controller.Verify)
	app.Get(controller.Routes.Health, controller.Health)

	return controller
}

// LoginPost handles POST /api/auth/login
func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.ErrorResponse(c, wrapSentinel(ErrInvalidLoginRequest, err, nil))
	}

	payload.SourceAddress = c.IP()
	payload.UserAgent = c.Get(fiber.HeaderUserAgent)

	if a.Debug {
		a.Logger.Debug("login request", "identity", payload.Identity, "source", payload.SourceAddress,
			"device", print.MaybePrettyJSON(ParseUserAgent(payload.UserAgent)))
	}

	result, err := a.Auther.Login(c.UserContext(), *payload)
	if err != nil {
		return a.ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":    true,
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user": fiber.Map{
			"username": result.Identity,
			"role":     result.Role,
		},
	})
}

// Verify handles GET /api/auth/verify
func (a *AuthController) Verify(c *fiber.Ctx) error {
	session, err := a.Auther.Authenticate(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return a.ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"user":    session,
	})
}

// Health reports the connection guard state without opening a connection
func (a *AuthController) Health(c *fiber.Ctx) error {
	guard := a.Auther.Guard()
	state := guard.State()

	body := fiber.Map{
		"status": "ok",
		"store":  state,
	}
	if state == StateFailed {
		body["status"] = "degraded"
		if err := guard.LastError(); err != nil {
			kind := AuthErrorKind(err)
			if kind == "" {
				kind = TextCodeStoreUnavailable
			}
			body["error"] = kind
			a.Logger.Debug("store degraded", "error", err)
		}
	}

	return c.Status(fiber.StatusOK).JSON(body)
}

// ErrorResponse writes err as a JSON body with the mapped status code.
// Messages come from the error taxonomy only, so causes never leak.
func (a *AuthController) ErrorResponse(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)

	message := "internal server error"
	code := ""

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		code = richErr.TextCode
		if status < fiber.StatusInternalServerError || IsRetryable(err) {
			message = richErr.Message
		}
	}

	switch {
	case IsAuthError(err, ErrAccountLocked):
		if retry := a.retryAfter(richErr); retry > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry/time.Second)))
		}
	case IsAuthError(err, ErrLoginThrottled):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(throttleRetryAfter/time.Second)))
	case IsRetryable(err):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(storeRetryAfter/time.Second)))
	}

	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
	} else if a.Debug && richErr != nil {
		a.Logger.Debug("request rejected", "path", c.Path(), "status", status,
			"details", print.MaybePrettyJSON(richErr.Metadata))
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

func (a *AuthController) retryAfter(richErr *errors.Error) time.Duration {
	if richErr == nil {
		return 0
	}
	until, ok := richErr.Metadata["locked_until"].(time.Time)
	if !ok {
		return 0
	}
	return AttemptStatus{Locked: true, LockedUntil: until}.RetryAfter(a.now())
}
