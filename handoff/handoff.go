// Package handoff carries a verified reset code from the verification screen
// to the password-reset screen. The channel lives in the ephemeral store and
// is single use: it is purged once consumed by a successful reset, when it is
// found incomplete, or when the flow is restarted.
package handoff

import (
	"context"
	"strings"

	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	KeyEmail    = "resetEmail"
	KeyCode     = "resetOtp"
	KeyVerified = "otpVerified"

	verifiedValue = "true"
)

var keys = []string{KeyEmail, KeyCode, KeyVerified}

// ErrRefused means there is no verified code to reset with; the user has to
// start the reset flow again.
var ErrRefused = &autherrors.Error{
	Kind:    autherrors.KindInvalidOrExpiredCode,
	Message: "Your reset session has expired. Please request a new code.",
}

// Verified is what the reset step needs from the verification step.
type Verified struct {
	Email string
	Code  string
}

type Store struct {
	store storage.Store
}

func New(store storage.Store) *Store {
	return &Store{store: store}
}

// Publish records a verified code, replacing anything published before.
func (s *Store) Publish(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(email)
	if email == "" || code == "" {
		return errors.New("[Publish] email and code are required")
	}
	values := map[string]string{
		KeyEmail:    email,
		KeyCode:     code,
		KeyVerified: verifiedValue,
	}
	for _, key := range keys {
		if err := s.store.Set(ctx, key, values[key]); err != nil {
			s.Purge(ctx)
			return errors.Wrapf(err, "[Publish] failed to set %s", key)
		}
	}
	return nil
}

// Peek reports whether a complete handoff is waiting without consuming it.
func (s *Store) Peek(ctx context.Context) (Verified, bool) {
	v, err := s.read(ctx)
	return v, err == nil
}

// Consume returns the published code. An incomplete or unverified channel is
// purged and ErrRefused returned. A successful read leaves the channel in
// place until Purge, so a failed reset can be retried.
func (s *Store) Consume(ctx context.Context) (Verified, error) {
	v, err := s.read(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("reset handoff refused")
		s.Purge(ctx)
		return Verified{}, ErrRefused
	}
	return v, nil
}

func (s *Store) read(ctx context.Context) (Verified, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		value, ok, err := s.store.Get(ctx, key)
		if err != nil {
			return Verified{}, errors.Wrapf(err, "[read] failed to get %s", key)
		}
		if !ok || value == "" {
			return Verified{}, errors.Errorf("[read] %s missing", key)
		}
		values[key] = value
	}
	if values[KeyVerified] != verifiedValue {
		return Verified{}, errors.Errorf("[read] %s is %q", KeyVerified, values[KeyVerified])
	}
	return Verified{Email: values[KeyEmail], Code: values[KeyCode]}, nil
}

// Purge removes every handoff key. Failures are logged and ignored.
func (s *Store) Purge(ctx context.Context) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("failed to purge handoff key")
		}
	}
}
