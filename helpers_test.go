package auth_test

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-auth-guard"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

const testSigningKey = "test-signing-key-0123456789"

type testConfig struct {
	signingKey string
	expiration time.Duration
	issuer     string
	audience   []string
}

func (c testConfig) GetSigningKey() string             { return c.signingKey }
func (c testConfig) GetTokenExpiration() time.Duration { return c.expiration }
func (c testConfig) GetIssuer() string                 { return c.issuer }
func (c testConfig) GetAudience() []string             { return c.audience }

func newTestConfig() testConfig {
	return testConfig{
		signingKey: testSigningKey,
		expiration: 24 * time.Hour,
		issuer:     "auth-guard-test",
	}
}

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryConnection is an in-process account store
type memoryConnection struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	findErr  error
	inserts  int
	closed   int
}

func newMemoryConnection() *memoryConnection {
	return &memoryConnection{accounts: map[string]*auth.Account{}}
}

func (m *memoryConnection) FindByIdentity(_ context.Context, identity string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	acc, ok := m.accounts[auth.NormalizeIdentity(identity)]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *memoryConnection) InsertAccount(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := auth.NormalizeIdentity(account.Identity)
	if _, ok := m.accounts[key]; ok {
		return auth.ErrAccountExists
	}
	cp := *account
	m.accounts[key] = &cp
	m.inserts++
	return nil
}

func (m *memoryConnection) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *memoryConnection) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

func (m *memoryConnection) addAccount(identity, password, role string) *auth.Account {
	hash, err := fastHasher().HashPassword(password)
	if err != nil {
		panic(err)
	}
	acc := &auth.Account{
		ID:           identity + "-id",
		Identity:     identity,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now(),
	}
	m.mu.Lock()
	m.accounts[auth.NormalizeIdentity(identity)] = acc
	m.mu.Unlock()
	return acc
}

func fastHasher() *auth.BcryptHasher {
	return auth.NewBcryptHasher(bcrypt.MinCost)
}

// recordingNotifier stores delivered events and optionally fails
type recordingNotifier struct {
	mu     sync.Mutex
	events []auth.SecurityEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event auth.SecurityEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) Events() []auth.SecurityEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]auth.SecurityEvent, len(n.events))
	copy(out, n.events)
	return out
}

// MockAccountStore implements auth.AccountStore for testing
type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) FindByIdentity(ctx context.Context, identity string) (*auth.Account, error) {
	args := m.Called(ctx, identity)
	acc, _ := args.Get(0).(*auth.Account)
	return acc, args.Error(1)
}

func (m *MockAccountStore) InsertAccount(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockLogger implements auth.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Info(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Warn(msg string, args ...any) {
	m.Called(msg, args)
}

func (m *MockLogger) Error(msg string, args ...any) {
	m.Called(msg, args)
}
