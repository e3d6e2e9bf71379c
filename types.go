package auth

import (
	"context"
	"time"
)

// Config holds token options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
}

// AccountStore is the narrow slice of the document store the core uses.
// Implementations return ErrAccountNotFound and ErrAccountExists.
type AccountStore interface {
	FindByIdentity(ctx context.Context, identity string) (*Account, error)
	InsertAccount(ctx context.Context, account *Account) error
}

// Connection is a live store handle owned by the ConnectionGuard.
type Connection interface {
	AccountStore
	Close(ctx context.Context) error
}

// Connector opens a Connection. The context carries the attempt deadline.
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Connection, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context) (Connection, error) {
	return f(ctx)
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(password, hash string) bool
}

// HeaderSink receives response headers. http.Header and *fiber.Ctx both
// satisfy it.
type HeaderSink interface {
	Set(key, value string)
}

// Session is the verified view of a token
type Session struct {
	Identity  string    `json:"identity"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is what the routing layer hands to Login.
type LoginRequest struct {
	Identity      string `json:"username"`
	Password      string `json:"password"`
	SourceAddress string `json:"-"`
	UserAgent     string `json:"-"`
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  string    `json:"username"`
	Role      string    `json:"role"`
}

type clock func() time.Time
