package bearer_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-auth-guard/middleware/bearer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(token string) (*auth.Session, error) {
	args := m.Called(token)
	session, _ := args.Get(0).(*auth.Session)
	return session, args.Error(1)
}

func newApp(cfg bearer.Config) *fiber.App {
	app := fiber.New()
	app.Use(bearer.New(cfg))
	app.Get("/me", func(c *fiber.Ctx) error {
		session, ok := bearer.GetSession(c, cfg.ContextKey)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{
			"identity": session.Identity,
			"ctx":      auth.IdentityFromContext(c.UserContext()),
		})
	})
	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestBearer_ValidToken(t *testing.T) {
	authenticator := &MockAuthenticator{}
	authenticator.On("Authenticate", "good-token").
		Return(&auth.Session{Identity: "admin", Role: auth.RoleAdmin}, nil).Once()

	app := newApp(bearer.Config{Authenticator: authenticator})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good-token")
	status, body := do(t, app, req)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "admin", body["identity"])
	assert.Equal(t, "admin", body["ctx"])
	authenticator.AssertExpectations(t)
}

func TestBearer_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		setup    func(m *MockAuthenticator)
		wantCode string
		wantErr  string
	}{
		{
			name:    "missing header",
			header:  "",
			wantErr: "No token provided",
		},
		{
			name:    "wrong scheme",
			header:  "Basic abc",
			wantErr: "No token provided",
		},
		{
			name:   "invalid token",
			header: "Bearer bad-token",
			setup: func(m *MockAuthenticator) {
				m.On("Authenticate", "bad-token").Return(nil, auth.ErrTokenInvalid).Once()
			},
			wantCode: auth.TextCodeTokenInvalid,
			wantErr:  "Invalid or expired token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := &MockAuthenticator{}
			if tt.setup != nil {
				tt.setup(authenticator)
			}
			app := newApp(bearer.Config{Authenticator: authenticator})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			status, body := do(t, app, req)

			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, tt.wantErr, body["error"])
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["code"])
			}
			authenticator.AssertExpectations(t)
		})
	}
}

func TestBearer_RoleChecks(t *testing.T) {
	editor := &auth.Session{Identity: "bob", Role: auth.RoleEditor}

	tests := []struct {
		name   string
		cfg    bearer.Config
		status int
	}{
		{name: "minimum role met", cfg: bearer.Config{MinimumRole: auth.RoleEditor}, status: http.StatusOK},
		{name: "minimum role not met", cfg: bearer.Config{MinimumRole: auth.RoleAdmin}, status: http.StatusForbidden},
		{name: "required role met", cfg: bearer.Config{RequiredRole: auth.RoleEditor}, status: http.StatusOK},
		{name: "required role not met", cfg: bearer.Config{RequiredRole: auth.RoleAdmin}, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authenticator := &MockAuthenticator{}
			authenticator.On("Authenticate", "tok").Return(editor, nil)
			tt.cfg.Authenticator = authenticator

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			req.Header.Set(fiber.HeaderAuthorization, "Bearer tok")
			status, _ := do(t, newApp(tt.cfg), req)

			assert.Equal(t, tt.status, status)
		})
	}
}

func TestBearer_FilterAndLookup(t *testing.T) {
	authenticator := &MockAuthenticator{}
	authenticator.On("Authenticate", "from-query").Return(&auth.Session{Identity: "admin"}, nil)

	app := fiber.New()
	app.Use(bearer.New(bearer.Config{
		Authenticator: authenticator,
		TokenLookup:   "header:Authorization,query:token",
		Filter: func(c *fiber.Ctx) bool {
			return c.Path() == "/public"
		},
	}))
	app.Get("/public", func(c *fiber.Ctx) error { return c.SendString("open") })
	app.Get("/private", func(c *fiber.Ctx) error { return c.SendString("closed") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/public", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/private?token=from-query", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	authenticator.AssertNumberOfCalls(t, "Authenticate", 1)
}

func TestBearer_CustomErrorHandler(t *testing.T) {
	var captured error
	authenticator := &MockAuthenticator{}

	app := newApp(bearer.Config{
		Authenticator: authenticator,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			captured = err
			return c.SendStatus(fiber.StatusTeapot)
		},
	})

	status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/me", nil))

	assert.Equal(t, http.StatusTeapot, status)
	assert.True(t, errors.Is(captured, bearer.ErrTokenMissingOrMalformed))
}

func TestBearer_RequiresAuthenticator(t *testing.T) {
	assert.Panics(t, func() {
		bearer.New()
	})
}

func TestGetExtractors(t *testing.T) {
	assert.Len(t, bearer.GetExtractors("header:Authorization,cookie:jwt,query:token,bogus", "Bearer"), 3)
	assert.Empty(t, bearer.GetExtractors("", "Bearer"))
}
