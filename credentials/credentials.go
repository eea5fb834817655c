// Package credentials reads and writes the auth token and user record across
// the durable and ephemeral stores. Storage failures never surface: session
// continuity is a convenience, so a failing store behaves like an empty one.
package credentials

import (
	"context"

	"github.com/jrsteele09/rental-auth-client/storage"
	"github.com/rs/zerolog/log"
)

// Persistence keys.
const (
	KeyToken        = "authToken"
	KeyUser         = "userData"
	KeyRefreshToken = "refreshToken"
	KeyCachedImage  = "cachedProfileImage"
)

var sessionKeys = []string{KeyToken, KeyUser, KeyRefreshToken, KeyCachedImage}

type Store struct {
	durable   storage.Store
	ephemeral storage.Store
}

func New(durable, ephemeral storage.Store) *Store {
	return &Store{
		durable:   durable,
		ephemeral: ephemeral,
	}
}

func (s *Store) store(mode storage.Mode) storage.Store {
	if mode == storage.Durable {
		return s.durable
	}
	return s.ephemeral
}

// Read returns the first usable value for key, checking the durable store
// before the ephemeral one.
func (s *Store) Read(ctx context.Context, key string) (string, bool) {
	value, _, ok := s.lookup(ctx, key)
	return value, ok
}

// Locate reports which store currently holds key.
func (s *Store) Locate(ctx context.Context, key string) (storage.Mode, bool) {
	_, mode, ok := s.lookup(ctx, key)
	return mode, ok
}

func (s *Store) lookup(ctx context.Context, key string) (string, storage.Mode, bool) {
	for _, mode := range []storage.Mode{storage.Durable, storage.Ephemeral} {
		value, ok, err := s.store(mode).Get(ctx, key)
		if err != nil {
			log.Debug().Err(err).Str("key", key).Stringer("mode", mode).Msg("credential read failed")
			continue
		}
		if ok && usable(value) {
			return value, mode, true
		}
	}
	return "", storage.Ephemeral, false
}

// usable filters out placeholders left behind by serialising absent values.
func usable(value string) bool {
	return value != "" && value != "null" && value != "undefined"
}

// Write stores value in the store selected by mode only.
func (s *Store) Write(ctx context.Context, key, value string, mode storage.Mode) {
	if err := s.store(mode).Set(ctx, key, value); err != nil {
		log.Debug().Err(err).Str("key", key).Stringer("mode", mode).Msg("credential write failed")
	}
}

// Clear removes key from both stores.
func (s *Store) Clear(ctx context.Context, key string) {
	for _, mode := range []storage.Mode{storage.Durable, storage.Ephemeral} {
		if err := s.store(mode).Delete(ctx, key); err != nil {
			log.Debug().Err(err).Str("key", key).Stringer("mode", mode).Msg("credential clear failed")
		}
	}
}

// ClearSession removes every session key from both stores.
func (s *Store) ClearSession(ctx context.Context) {
	for _, key := range sessionKeys {
		s.Clear(ctx, key)
	}
}
