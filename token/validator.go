// Package token inspects session tokens on the client.
//
// The client holds no signing secret, so tokens are never verified here: the
// payload is decoded only to read its expiry. This is a UX check that avoids
// restoring an obviously stale session; the server re-validates the token on
// every request.
package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	ErrMalformed = errors.New("token malformed")
	ErrNoExpiry  = errors.New("token has no expiry")
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Validator struct {
	parser  *jwt.Parser
	nowFunc func() time.Time
}

type ValidatorOption func(*Validator)

func WithNowFunc(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowFunc = now
	}
}

func NewValidator(options ...ValidatorOption) *Validator {
	v := &Validator{
		parser: jwt.NewParser(jwt.WithPaddingAllowed()),
	}
	for _, opt := range options {
		opt(v)
	}
	if v.nowFunc == nil {
		v.nowFunc = func() time.Time { return NowTimeFunc() }
	}
	return v
}

// IsValid reports whether raw is shaped like a signed token and has not
// expired. A token without an exp claim is valid; any decode failure is not.
func (v *Validator) IsValid(raw string) bool {
	exp, err := v.Expiry(raw)
	if errors.Is(err, ErrNoExpiry) {
		return true
	}
	if err != nil {
		return false
	}
	return v.nowFunc().Before(exp)
}

// Expiry returns the exp claim of raw. ErrNoExpiry is returned when the
// payload decodes but carries no exp.
func (v *Validator) Expiry(raw string) (time.Time, error) {
	claims, err := v.Claims(raw)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// Claims decodes the payload segment of raw without checking the signature.
func (v *Validator) Claims(raw string) (jwt.MapClaims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, errors.Wrap(ErrMalformed, "expected 3 segments")
	}

	// Accept both base64 alphabets; the decoder wants the URL-safe one.
	payload := strings.NewReplacer("+", "-", "/", "_").Replace(parts[1])
	data, err := v.parser.DecodeSegment(payload)
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	var claims jwt.MapClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if claims == nil {
		return nil, errors.Wrap(ErrMalformed, "empty payload")
	}
	return claims, nil
}
