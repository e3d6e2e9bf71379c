package redisattempts

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	auth "github.com/goliatone/go-auth-guard"
	"github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "auth:attempts:"
	maxTxRetries  = 32
)

// Options configures the redis client
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}

// Store keeps attempt records in redis so every process behind a load
// balancer sees the same counters. Updates use WATCH/MULTI so concurrent
// failures on one identity are never lost.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New wraps an existing client
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open dials redis and pings it
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required", errors.CategoryBadInput).
			WithTextCode(auth.TextCodeConfigurationMissing)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(client, opts.Prefix), nil
}

func (s *Store) key(identity string) string {
	return s.prefix + identity
}

// Load implements auth.AttemptStore.
func (s *Store) Load(ctx context.Context, key string) (auth.AttemptRecord, error) {
	return decode(s.client.Get(ctx, s.key(key)))
}

// Update implements auth.AttemptStore.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn auth.AttemptUpdateFunc) (auth.AttemptRecord, error) {
	k := s.key(key)

	var next auth.AttemptRecord
	txf := func(tx *redis.Tx) error {
		current, err := decode(tx.Get(ctx, k))
		if err != nil {
			return err
		}

		next = fn(current)

		var data []byte
		if !next.IsZero() {
			if data, err = json.Marshal(next); err != nil {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next.IsZero() {
				pipe.Del(ctx, k)
				return nil
			}
			pipe.Set(ctx, k, data, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return next, nil
		}
		if stderrors.Is(err, redis.TxFailedErr) {
			continue
		}
		return auth.AttemptRecord{}, err
	}

	return auth.AttemptRecord{}, errors.New("attempt update contended too long", errors.CategoryOperation).
		WithMetadata(map[string]any{"key": key, "retries": maxTxRetries})
}

// Delete implements auth.AttemptStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

// Close releases the client
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(cmd *redis.StringCmd) (auth.AttemptRecord, error) {
	var rec auth.AttemptRecord

	data, err := cmd.Bytes()
	if err != nil {
		if err == redis.Nil {
			return rec, nil
		}
		return rec, err
	}

	if err := json.Unmarshal(data, &rec); err != nil {
		return auth.AttemptRecord{}, err
	}
	return rec, nil
}
