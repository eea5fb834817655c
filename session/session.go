// Package session owns the client's authenticated identity: it persists the
// token and user through the credential store, restores them at startup and
// publishes changes to subscribers.
package session

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jrsteele09/rental-auth-client/credentials"
	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/storage"
	"github.com/jrsteele09/rental-auth-client/token"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/jrsteele09/rental-auth-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ErrVerificationRequired is returned by Login when the backend accepted the
// credentials but wants a one-time code before issuing a session.
var ErrVerificationRequired = &autherrors.Error{
	Kind:    autherrors.KindAccountNotVerified,
	Message: "A verification code has been sent to your email.",
}

// Session is a token together with the user it was issued to.
type Session struct {
	Token string
	User  *users.User
}

type Credentials struct {
	Email    string
	Password string
}

type Manager struct {
	transport transport.Transport
	creds     *credentials.Store
	validator *token.Validator
	state     *State
	remote    func(func()) // runs fire-and-forget remote calls
}

type ManagerOption func(*Manager)

// WithBackground overrides how fire-and-forget calls are run. Tests use it to
// wait for the remote logout.
func WithBackground(run func(func())) ManagerOption {
	return func(m *Manager) {
		m.remote = run
	}
}

func NewManager(t transport.Transport, creds *credentials.Store, validator *token.Validator, options ...ManagerOption) (*Manager, error) {
	if t == nil {
		return nil, errors.New("[NewManager] transport is required")
	}
	if creds == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if validator == nil {
		validator = token.NewValidator()
	}
	m := &Manager{
		transport: t,
		creds:     creds,
		validator: validator,
		state:     newState(),
		remote:    func(fn func()) { go fn() },
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// State exposes the observable session state.
func (m *Manager) State() *State {
	return m.state
}

// Login authenticates and, only once the backend has answered with a token,
// persists the session in the store chosen by remember.
func (m *Manager) Login(ctx context.Context, c Credentials, remember bool) (*Session, error) {
	email := strings.TrimSpace(c.Email)
	if err := users.ValidateEmail(email); err != nil {
		return nil, autherrors.Field("email", "Enter a valid email address.")
	}
	if c.Password == "" {
		return nil, autherrors.Field("password", "Password is required.")
	}

	resp, err := m.transport.Login(ctx, email, c.Password)
	if err != nil {
		log.Info().Str("email", email).Str("kind", autherrors.KindOf(err).String()).Msg("login failed")
		return nil, errors.Wrap(err, "[Login] transport")
	}
	if resp == nil || resp.Token == "" {
		return nil, ErrVerificationRequired
	}
	if resp.User == nil {
		return nil, errors.Wrap(autherrors.New(autherrors.KindUnknown, "The server did not return your profile."), "[Login] response")
	}

	user := *resp.User
	if user.Role == "" {
		user.Role = resp.Role
	}
	s, err := m.establish(ctx, resp.Token, resp.RefreshToken, &user, storage.ModeFor(remember))
	if err != nil {
		return nil, errors.Wrap(err, "[Login] persist")
	}
	log.Info().Str("user_id", user.ID).Bool("remember", remember).Msg("logged in")
	return s, nil
}

// Register submits a signup. No session exists until the emailed code is verified.
func (m *Manager) Register(ctx context.Context, reg transport.RegisterRequest) (*transport.OTPResponse, error) {
	reg.Email = strings.TrimSpace(reg.Email)
	if err := users.ValidateEmail(reg.Email); err != nil {
		return nil, autherrors.Field("email", "Enter a valid email address.")
	}
	if err := users.ValidatePhone(reg.PhoneNumber); err != nil {
		return nil, autherrors.Field("phoneNumber", "Enter a valid phone number.")
	}
	if err := users.ValidatePasswordStrength(reg.Password); err != nil {
		return nil, autherrors.Field("password", err.Error())
	}
	resp, err := m.transport.Register(ctx, reg)
	if err != nil {
		return nil, errors.Wrap(err, "[Register] transport")
	}
	return resp, nil
}

// CompleteVerification establishes a session from a verification response
// that carried auth data.
func (m *Manager) CompleteVerification(ctx context.Context, resp *transport.VerifyResponse, remember bool) (*Session, error) {
	if resp == nil || resp.Token == "" || resp.User == nil {
		// A token without a user (or the reverse) would break the session
		// pairing, so nothing is stored.
		return nil, autherrors.New(autherrors.KindCorruptedSession, "Verification succeeded. Please sign in to continue.")
	}
	user := *resp.User
	s, err := m.establish(ctx, resp.Token, resp.RefreshToken, &user, storage.ModeFor(remember))
	if err != nil {
		return nil, errors.Wrap(err, "[CompleteVerification] persist")
	}
	log.Info().Str("user_id", user.ID).Msg("session established by verification")
	return s, nil
}

func (m *Manager) establish(ctx context.Context, tok, refreshToken string, user *users.User, mode storage.Mode) (*Session, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	m.creds.ClearSession(ctx)
	m.creds.Write(ctx, credentials.KeyToken, tok, mode)
	m.creds.Write(ctx, credentials.KeyUser, string(data), mode)
	if refreshToken != "" {
		m.creds.Write(ctx, credentials.KeyRefreshToken, refreshToken, mode)
	}

	m.state.publish(Snapshot{User: user, Authenticated: true})
	u := *user
	return &Session{Token: tok, User: &u}, nil
}

// Logout waits for the remote invalidation, then clears the local session
// whatever the outcome.
func (m *Manager) Logout(ctx context.Context) {
	if tok, ok := m.creds.Read(ctx, credentials.KeyToken); ok {
		if err := m.transport.Logout(ctx, tok); err != nil {
			log.Warn().Err(err).Msg("remote logout failed")
		}
	}
	m.clear(ctx)
	log.Info().Msg("logged out")
}

// LogoutAsync clears the local session immediately and fires the remote
// invalidation without waiting for it.
func (m *Manager) LogoutAsync(ctx context.Context) {
	tok, ok := m.creds.Read(ctx, credentials.KeyToken)
	m.clear(ctx)
	log.Info().Msg("logged out")
	if !ok {
		return
	}
	m.remote(func() {
		if err := m.transport.Logout(context.WithoutCancel(ctx), tok); err != nil {
			log.Warn().Err(err).Msg("remote logout failed")
		}
	})
}

func (m *Manager) clear(ctx context.Context) {
	m.creds.ClearSession(ctx)
	m.state.publish(Snapshot{})
}

// CurrentUser returns the published user, or nil when signed out.
func (m *Manager) CurrentUser() *users.User {
	return m.state.Snapshot().User
}

// IsAuthenticated checks the stored token, not just the published flag, so a
// token that expired while the app was running is reported as signed out.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	tok, ok := m.creds.Read(ctx, credentials.KeyToken)
	return ok && m.validator.IsValid(tok)
}

// HasRole compares role with the stored user's role, ignoring case.
func (m *Manager) HasRole(ctx context.Context, role string) bool {
	user, err := m.storedUser(ctx)
	if err != nil || user == nil {
		return false
	}
	return user.HasRole(role)
}

// UpdateUser applies mutate to the stored user and writes it back to the
// store that holds the session.
func (m *Manager) UpdateUser(ctx context.Context, mutate func(*users.User)) (*users.User, error) {
	user, err := m.storedUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.Wrap(autherrors.New(autherrors.KindCorruptedSession, ""), "[UpdateUser] no session")
	}
	mode, _ := m.creds.Locate(ctx, credentials.KeyUser)

	mutate(user)
	data, err := json.Marshal(user)
	if err != nil {
		return nil, errors.Wrap(err, "[UpdateUser] encode")
	}
	m.creds.Write(ctx, credentials.KeyUser, string(data), mode)
	m.state.publish(Snapshot{User: user, Authenticated: true})

	u := *user
	return &u, nil
}

// Initialize restores a persisted session. A token without a user (or the
// reverse), an unreadable user or an expired token purges both stores.
func (m *Manager) Initialize(ctx context.Context) *Session {
	tok, hasToken := m.creds.Read(ctx, credentials.KeyToken)
	_, hasUser := m.creds.Read(ctx, credentials.KeyUser)

	if !hasToken && !hasUser {
		m.state.publish(Snapshot{})
		return nil
	}
	if hasToken != hasUser {
		log.Warn().Bool("token", hasToken).Bool("user", hasUser).Msg("purging corrupted session")
		m.clear(ctx)
		return nil
	}

	user, err := m.storedUser(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("purging unreadable session")
		m.clear(ctx)
		return nil
	}
	if !m.validator.IsValid(tok) {
		log.Info().Str("user_id", user.ID).Msg("stored session expired")
		m.clear(ctx)
		return nil
	}

	m.state.publish(Snapshot{User: user, Authenticated: true})
	u := *user
	return &Session{Token: tok, User: &u}
}

func (m *Manager) storedUser(ctx context.Context) (*users.User, error) {
	raw, ok := m.creds.Read(ctx, credentials.KeyUser)
	if !ok {
		return nil, nil
	}
	var user users.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, autherrors.WithCause(autherrors.KindCorruptedSession, "", err)
	}
	return &user, nil
}
