// Package redisstore is a durable storage.Store kept in Redis, for shared or
// kiosk devices where the local disk is not trusted to keep a session.
package redisstore

import (
	"context"
	"time"

	"github.com/jrsteele09/rental-auth-client/storage"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ storage.Store = (*Store)(nil)

type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL expires every written key after ttl. Zero keeps keys until deleted.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

func New(client redis.UniversalClient, prefix string, options ...Option) *Store {
	s := &Store{
		redis:  client,
		prefix: prefix,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.redis.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(storage.ErrUnavailable, "[Get] %s: %v", key, err)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.redis.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "[Set] %s: %v", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Wrapf(storage.ErrUnavailable, "[Delete] %s: %v", key, err)
	}
	return nil
}
