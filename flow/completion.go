// Package flow connects the verification screen to what happens after it:
// signing the user in, handing a reset code to the reset-password step, or
// sending them back to login.
package flow

import (
	"context"

	"github.com/jrsteele09/rental-auth-client/handoff"
	"github.com/jrsteele09/rental-auth-client/otp"
	"github.com/jrsteele09/rental-auth-client/routing"
	"github.com/jrsteele09/rental-auth-client/session"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Completion dispatches verified codes. It implements otp.Completer.
type Completion struct {
	sessions *session.Manager
	handoff  *handoff.Store
	nav      routing.Navigator
	remember bool
}

var _ otp.Completer = (*Completion)(nil)

// NewCompletion builds the dispatcher. remember picks the store a session
// created by verification is written to.
func NewCompletion(sessions *session.Manager, h *handoff.Store, nav routing.Navigator, remember bool) (*Completion, error) {
	if sessions == nil || h == nil || nav == nil {
		return nil, errors.New("[NewCompletion] sessions, handoff and navigator are required")
	}
	return &Completion{sessions: sessions, handoff: h, nav: nav, remember: remember}, nil
}

func (c *Completion) Complete(ctx context.Context, result otp.Result) (string, error) {
	logger := log.With().Str("email", result.Email).Str("verification_type", string(result.Type)).Logger()

	switch {
	case result.AlreadyVerified:
		logger.Info().Msg("account already verified, sending to login")
		return c.navigate(ctx, routing.RouteLogin)

	case result.Type == transport.PasswordReset:
		if err := c.handoff.Publish(ctx, result.Email, result.Code); err != nil {
			return "", errors.Wrap(err, "[Complete] handoff")
		}
		return c.navigate(ctx, routing.RouteResetPassword)

	case !result.Response.HasAuth():
		logger.Info().Msg("verified without a session, sending to login")
		return c.navigate(ctx, routing.RouteLogin)
	}

	s, err := c.sessions.CompleteVerification(ctx, result.Response, c.remember)
	if err != nil {
		logger.Warn().Err(err).Msg("could not establish session after verification")
		if route, navErr := c.navigate(ctx, routing.RouteLogin); navErr == nil {
			return route, errors.Wrap(err, "[Complete] session")
		}
		return "", errors.Wrap(err, "[Complete] session")
	}

	route, err := routing.Redirect(ctx, c.nav, s.User.Role)
	if err != nil {
		return "", errors.Wrap(err, "[Complete] redirect")
	}
	return route, nil
}

func (c *Completion) navigate(ctx context.Context, route string) (string, error) {
	if err := c.nav.Navigate(ctx, route); err != nil {
		return "", errors.Wrapf(err, "[Complete] navigate to %s", route)
	}
	return route, nil
}
