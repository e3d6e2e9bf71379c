package bunstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// DefaultDSN keeps accounts in a shared in-memory database
const DefaultDSN = "file::memory:?cache=shared"

// AccountModel is the Bun model for accounts.
type AccountModel struct {
	bun.BaseModel `bun:"table:accounts"`

	ID           string    `bun:"id,pk"`
	Identity     string    `bun:"identity,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	Role         string    `bun:"role,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Store implements auth.Connection on top of Bun.
type Store struct {
	db *bun.DB
}

// New wraps an open database. Call Migrate before use.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the accounts table and its unique identity constraint.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*AccountModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create accounts table")
	}
	return nil
}

// FindByIdentity implements auth.AccountStore.
func (s *Store) FindByIdentity(ctx context.Context, identity string) (*auth.Account, error) {
	var model AccountModel
	err := s.db.NewSelect().
		Model(&model).
		Where("identity = ?", auth.NormalizeIdentity(identity)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}
	return toAccount(&model), nil
}

// InsertAccount implements auth.AccountStore.
func (s *Store) InsertAccount(ctx context.Context, account *auth.Account) error {
	model := fromAccount(account)
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return auth.ErrAccountExists
		}
		return err
	}
	return nil
}

// Count returns the number of stored accounts
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().Model((*AccountModel)(nil)).Count(ctx)
}

// Close implements auth.Connection.
func (s *Store) Close(_ context.Context) error {
	return s.db.Close()
}

// DB exposes the underlying database
func (s *Store) DB() *bun.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "constraint failed: unique")
}

func toAccount(m *AccountModel) *auth.Account {
	return &auth.Account{
		ID:           m.ID,
		Identity:     m.Identity,
		PasswordHash: m.PasswordHash,
		Role:         m.Role,
		CreatedAt:    m.CreatedAt,
	}
}

func fromAccount(a *auth.Account) *AccountModel {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &AccountModel{
		ID:           a.ID,
		Identity:     auth.NormalizeIdentity(a.Identity),
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		CreatedAt:    createdAt,
	}
}

// Connector opens a sqlite database through sqliteshim.
type Connector struct {
	DSN string
}

// NewConnector returns a connector for dsn, DefaultDSN when empty
func NewConnector(dsn string) *Connector {
	if dsn == "" {
		dsn = DefaultDSN
	}
	return &Connector{DSN: dsn}
}

// Connect implements auth.Connector.
func (c *Connector) Connect(ctx context.Context) (auth.Connection, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, c.DSN)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, err
	}

	store := New(bun.NewDB(sqldb, sqlitedialect.New()))
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}

	return store, nil
}
