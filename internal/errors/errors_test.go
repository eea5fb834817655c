package errors_test

import (
	"fmt"
	"testing"

	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesSentinelByKind(t *testing.T) {
	err := autherrors.New(autherrors.KindRateLimited, "slow down")
	wrapped := pkgerrors.Wrap(err, "[Login] transport")

	require.ErrorIs(t, wrapped, autherrors.ErrRateLimited)
	require.NotErrorIs(t, wrapped, autherrors.ErrInvalidCredentials)
	require.Equal(t, autherrors.KindRateLimited, autherrors.KindOf(wrapped))
	require.Equal(t, "slow down", autherrors.UserMessage(wrapped))
}

func TestUserMessage(t *testing.T) {
	t.Run("default message for kind", func(t *testing.T) {
		err := &autherrors.Error{Kind: autherrors.KindAccountLocked}
		require.Contains(t, autherrors.UserMessage(err), "locked")
	})

	t.Run("unclassified error", func(t *testing.T) {
		require.Contains(t, autherrors.UserMessage(fmt.Errorf("boom")), "Something went wrong")
		require.Equal(t, autherrors.KindUnknown, autherrors.KindOf(fmt.Errorf("boom")))
	})

	t.Run("nil", func(t *testing.T) {
		require.Empty(t, autherrors.UserMessage(nil))
	})
}

func TestFieldAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := autherrors.WithCause(autherrors.KindNetworkUnreachable, "", cause)
	require.ErrorIs(t, err, cause)
	require.True(t, autherrors.KindNetworkUnreachable.Retryable())
	require.False(t, autherrors.KindAccountLocked.Retryable())

	fieldErr := autherrors.Field("email", "Enter a valid email")
	require.Equal(t, "email", autherrors.FieldOf(pkgerrors.Wrap(fieldErr, "ctx")))
	require.ErrorIs(t, fieldErr, autherrors.ErrMalformedInput)
}
