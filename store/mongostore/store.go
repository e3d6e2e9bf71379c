package mongostore

import (
	"context"
	stderrors "errors"
	"time"

	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	DefaultDatabase   = "authguard"
	DefaultCollection = "users"

	DefaultConnectTimeout         = 10 * time.Second
	DefaultServerSelectionTimeout = 10 * time.Second

	identityIndexName = "uniq_username"
)

// accountDocument is how an account is stored
type accountDocument struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Password  string    `bson:"password"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

// SingleResult is the decode side of a FindOne
type SingleResult interface {
	Decode(v any) error
}

// Collection is the slice of *mongo.Collection the store uses
type Collection interface {
	FindOne(ctx context.Context, filter any) SingleResult
	InsertOne(ctx context.Context, document any) error
	EnsureUniqueIndex(ctx context.Context, field, name string) error
}

type mongoCollection struct {
	coll *mongo.Collection
}

// WrapCollection adapts a driver collection
func WrapCollection(coll *mongo.Collection) Collection {
	return mongoCollection{coll: coll}
}

func (c mongoCollection) FindOne(ctx context.Context, filter any) SingleResult {
	return c.coll.FindOne(ctx, filter)
}

func (c mongoCollection) InsertOne(ctx context.Context, document any) error {
	_, err := c.coll.InsertOne(ctx, document)
	return err
}

func (c mongoCollection) EnsureUniqueIndex(ctx context.Context, field, name string) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(name),
	})
	return err
}

// Store implements auth.Connection on a MongoDB collection.
type Store struct {
	coll       Collection
	disconnect func(ctx context.Context) error
}

// New returns a store on coll. disconnect may be nil.
func New(coll Collection, disconnect func(ctx context.Context) error) *Store {
	return &Store{coll: coll, disconnect: disconnect}
}

// EnsureIndexes creates the unique identity index
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if err := s.coll.EnsureUniqueIndex(ctx, "username", identityIndexName); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create identity index")
	}
	return nil
}

// FindByIdentity implements auth.AccountStore.
func (s *Store) FindByIdentity(ctx context.Context, identity string) (*auth.Account, error) {
	var doc accountDocument
	err := s.coll.FindOne(ctx, bson.M{"username": auth.NormalizeIdentity(identity)}).Decode(&doc)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrAccountNotFound
		}
		return nil, err
	}

	return &auth.Account{
		ID:           doc.ID,
		Identity:     doc.Username,
		PasswordHash: doc.Password,
		Role:         doc.Role,
		CreatedAt:    doc.CreatedAt,
	}, nil
}

// InsertAccount implements auth.AccountStore.
func (s *Store) InsertAccount(ctx context.Context, account *auth.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	err := s.coll.InsertOne(ctx, accountDocument{
		ID:        account.ID,
		Username:  auth.NormalizeIdentity(account.Identity),
		Password:  account.PasswordHash,
		Role:      account.Role,
		CreatedAt: createdAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.ErrAccountExists
		}
		return err
	}
	return nil
}

// Close implements auth.Connection.
func (s *Store) Close(ctx context.Context) error {
	if s.disconnect == nil {
		return nil
	}
	return s.disconnect(ctx)
}

// Options configures the Connector
type Options struct {
	URI                    string
	Database               string
	Collection             string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

// Connector dials MongoDB with bounded connect and server selection.
type Connector struct {
	opts Options
}

// NewConnector validates opts and fills defaults
func NewConnector(opts Options) (*Connector, error) {
	if opts.URI == "" {
		return nil, errors.New("mongodb uri is required", errors.CategoryBadInput).
			WithTextCode(auth.TextCodeConfigurationMissing)
	}
	if opts.Database == "" {
		opts.Database = DefaultDatabase
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ServerSelectionTimeout <= 0 {
		opts.ServerSelectionTimeout = DefaultServerSelectionTimeout
	}
	return &Connector{opts: opts}, nil
}

// ClientOptions returns the driver options used to connect
func (c *Connector) ClientOptions() *options.ClientOptions {
	return options.Client().
		ApplyURI(c.opts.URI).
		SetConnectTimeout(c.opts.ConnectTimeout).
		SetServerSelectionTimeout(c.opts.ServerSelectionTimeout)
}

// Connect implements auth.Connector. The client is pinged before it is
// handed out so an unreachable server fails here and not on first query.
func (c *Connector) Connect(ctx context.Context) (auth.Connection, error) {
	client, err := mongo.Connect(ctx, c.ClientOptions())
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}

	coll := client.Database(c.opts.Database).Collection(c.opts.Collection)
	store := New(WrapCollection(coll), client.Disconnect)

	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}

	return store, nil
}
