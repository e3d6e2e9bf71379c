package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// BootstrapAccount describes the default privileged account created on the
// first successful connection when none exists.
type BootstrapAccount struct {
	Identity string
	Password string
	Role     UserRole
}

// Bootstrapper creates the bootstrap account idempotently.
type Bootstrapper struct {
	account BootstrapAccount
	hasher  PasswordHasher
	logger  Logger
	now     clock
}

// NewBootstrapper returns a Bootstrapper. Role defaults to RoleAdmin.
func NewBootstrapper(account BootstrapAccount, hasher PasswordHasher, logger Logger) *Bootstrapper {
	if account.Role == "" {
		account.Role = RoleAdmin
	}
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultPasswordCost)
	}
	return &Bootstrapper{
		account: account,
		hasher:  hasher,
		logger:  normalizeLogger(logger),
		now:     time.Now,
	}
}

// Hook adapts the bootstrapper to WithOnConnect
func (b *Bootstrapper) Hook() func(ctx context.Context, conn Connection) error {
	return func(ctx context.Context, conn Connection) error {
		_, err := b.Ensure(ctx, conn)
		return err
	}
}

// Ensure inserts the bootstrap account unless one with the same identity
// exists. It never overwrites an existing account and reports whether it
// created one.
func (b *Bootstrapper) Ensure(ctx context.Context, store AccountStore) (bool, error) {
	identity := NormalizeIdentity(b.account.Identity)
	if identity == "" || strings.TrimSpace(b.account.Password) == "" {
		b.logger.Warn("bootstrap account not configured, skipping")
		return false, nil
	}

	existing, err := store.FindByIdentity(ctx, identity)
	switch {
	case err == nil && existing != nil:
		b.logger.Debug("bootstrap account present", "identity", identity)
		return false, nil
	case err != nil && !IsAuthError(err, ErrAccountNotFound):
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to look up bootstrap account")
	}

	hash, err := b.hasher.HashPassword(b.account.Password)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to hash bootstrap password")
	}

	account := &Account{
		ID:           uuid.NewString(),
		Identity:     identity,
		PasswordHash: hash,
		Role:         b.account.Role,
		CreatedAt:    b.now().UTC(),
	}

	if err := store.InsertAccount(ctx, account); err != nil {
		// lost a race against another process bootstrapping the same store
		if IsAuthError(err, ErrAccountExists) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to create bootstrap account")
	}

	b.logger.Info("bootstrap account created", "identity", identity, "role", account.Role)
	return true, nil
}
