package flow

import (
	"context"
	"strings"

	"github.com/jrsteele09/rental-auth-client/handoff"
	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/jrsteele09/rental-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PasswordReset drives the forgot-password flow around the verification
// screen: requesting a code, then setting a new password with the verified
// code taken from the handoff.
type PasswordReset struct {
	transport transport.Transport
	handoff   *handoff.Store
}

func NewPasswordReset(t transport.Transport, h *handoff.Store) (*PasswordReset, error) {
	if t == nil || h == nil {
		return nil, errors.New("[NewPasswordReset] transport and handoff are required")
	}
	return &PasswordReset{transport: t, handoff: h}, nil
}

// Request asks the backend to email a reset code. Any handoff left from an
// earlier attempt is purged first.
func (p *PasswordReset) Request(ctx context.Context, email string) (*transport.OTPResponse, error) {
	email = strings.TrimSpace(email)
	if err := users.ValidateEmail(email); err != nil {
		return nil, autherrors.Field("email", "Enter a valid email address.")
	}
	p.handoff.Purge(ctx)

	resp, err := p.transport.RequestOTP(ctx, email, transport.PasswordReset)
	if err != nil {
		return nil, errors.Wrap(err, "[Request] transport")
	}
	if resp == nil || !resp.Success {
		message := ""
		if resp != nil {
			message = resp.Message
		}
		return resp, autherrors.New(autherrors.KindUnknown, message)
	}
	log.Info().Str("email", email).Msg("password reset code requested")
	return resp, nil
}

// Begin is called when the reset-password step opens. ErrRefused means the
// user must go back and request a new code.
func (p *PasswordReset) Begin(ctx context.Context) (handoff.Verified, error) {
	return p.handoff.Consume(ctx)
}

// Reset sets the new password. Input is validated locally first. Once the
// backend has answered, success or not, the handoff is purged so the code
// cannot be replayed; a transport failure keeps it for a retry.
func (p *PasswordReset) Reset(ctx context.Context, newPassword, confirm string) error {
	if err := users.ValidatePasswordStrength(newPassword); err != nil {
		return autherrors.Field("password", err.Error())
	}
	if newPassword != confirm {
		return autherrors.Field("confirmPassword", "Passwords do not match.")
	}

	v, err := p.handoff.Consume(ctx)
	if err != nil {
		return err
	}

	resp, err := p.transport.ResetPassword(ctx, v.Email, v.Code, newPassword)
	if err != nil {
		return errors.Wrap(err, "[Reset] transport")
	}
	p.handoff.Purge(ctx)

	if resp == nil || !resp.Success {
		message := ""
		if resp != nil {
			message = resp.Message
		}
		log.Info().Str("email", v.Email).Str("reason", message).Msg("password reset rejected")
		return autherrors.New(autherrors.KindInvalidOrExpiredCode, message)
	}
	log.Info().Str("email", v.Email).Msg("password reset")
	return nil
}

// Restart abandons the flow and purges the handoff.
func (p *PasswordReset) Restart(ctx context.Context) {
	p.handoff.Purge(ctx)
}
