// Package otp drives the one-time-code screen shared by registration, login
// and password reset: segmented entry, paste handling, auto-submit, the resend
// cooldown and, for password reset, the absolute code expiry.
package otp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/rental-auth-client/internal/config"
	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the verification screen's position in the flow.
type State int

const (
	StateEntering State = iota
	StateSubmitting
	StateVerifiedWithAuth
	StateVerifiedNoAuth
	StateInvalid
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateEntering:
		return "entering"
	case StateSubmitting:
		return "submitting"
	case StateVerifiedWithAuth:
		return "verified_with_auth"
	case StateVerifiedNoAuth:
		return "verified_no_auth"
	case StateInvalid:
		return "invalid"
	case StateExpired:
		return "expired"
	}
	return "unknown"
}

// Finished reports whether the screen is done and accepts no more input.
func (s State) Finished() bool {
	return s == StateVerifiedWithAuth || s == StateVerifiedNoAuth
}

var (
	ErrClosed          = errors.New("verification screen closed")
	ErrInFlight        = errors.New("request already in flight")
	ErrFinished        = errors.New("verification already completed")
	ErrResendCooldown  = &autherrors.Error{Kind: autherrors.KindRateLimited, Message: "Please wait before requesting a new code."}
	ErrIncompleteCode  = &autherrors.Error{Kind: autherrors.KindMalformedInput, Field: "code", Message: "Please enter the complete 7-character code."}
	ErrCodeTimedOut    = &autherrors.Error{Kind: autherrors.KindInvalidOrExpiredCode, Message: "This code has expired. Please request a new one."}
	msgNewCodeSent     = "A new code has been sent to your email."
	msgUnknownResponse = "We couldn't verify your code. Please try again."
)

// Verifier is the part of the transport the screen calls.
type Verifier interface {
	VerifyOTP(ctx context.Context, email, code string, verificationType transport.VerificationType) (*transport.VerifyResponse, error)
	ResendOTP(ctx context.Context, email string, verificationType transport.VerificationType) (*transport.OTPResponse, error)
}

// Result is handed to the Completer once per screen, when the code is
// accepted or the account turns out to be verified already.
type Result struct {
	Email           string
	Code            string
	Type            transport.VerificationType
	Response        *transport.VerifyResponse
	AlreadyVerified bool
}

// Completer dispatches a verified result to the next step and returns the
// route the user was sent to.
type Completer interface {
	Complete(ctx context.Context, result Result) (route string, err error)
}

type Config struct {
	Email           string
	Type            transport.VerificationType
	ResendCooldown  time.Duration
	CodeExpiry      time.Duration // password reset only
	AutoSubmitDelay time.Duration
}

// ConfigFrom fills the timings from the application config.
func ConfigFrom(c config.OTPConfig, email string, verificationType transport.VerificationType) Config {
	return Config{
		Email:           email,
		Type:            verificationType,
		ResendCooldown:  c.GetResendCooldown(),
		CodeExpiry:      c.GetResetCodeExpiry(),
		AutoSubmitDelay: c.GetAutoSubmitDelay(),
	}
}

// Snapshot is the screen as the UI renders it.
type Snapshot struct {
	ScreenID    string
	State       State
	Slots       []string
	Focus       int
	CanResend   bool
	ResendIn    int // seconds
	Expired     bool
	ExpiresIn   int // seconds, password reset only
	Message     string
	ErrorKind   autherrors.Kind
	Failure     Failure
	Shakes      int // bumped on every rejected submit
	Destination string
}

// Code returns the code as currently entered.
func (s Snapshot) Code() string {
	return strings.Join(s.Slots, "")
}

// Machine is one verification screen instance. It is safe for concurrent
// use; network calls run outside its lock and at most one verify and one
// resend are in flight at a time.
type Machine struct {
	mu sync.Mutex

	cfg       Config
	verifier  Verifier
	completer Completer
	sched     Scheduler
	onChange  func(Snapshot)
	logger    zerolog.Logger
	screenID  string

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	code        Code
	focus       int
	state       State
	message     string
	errKind     autherrors.Kind
	failure     Failure
	shakes      int
	destination string

	canResend bool
	resending bool
	resend    countdown
	expired   bool
	expiry    countdown

	debounce    Cancel
	debounceGen uint64
}

type Option func(*Machine)

func WithScheduler(s Scheduler) Option {
	return func(m *Machine) {
		m.sched = s
	}
}

// WithOnChange registers a callback that receives every state change.
func WithOnChange(fn func(Snapshot)) Option {
	return func(m *Machine) {
		m.onChange = fn
	}
}

// WithContext ties the screen's lifetime to parent.
func WithContext(parent context.Context) Option {
	return func(m *Machine) {
		m.ctx = parent
	}
}

// NewMachine mounts a verification screen. A code has just been sent, so the
// resend cooldown starts immediately, as does the expiry for password reset.
func NewMachine(cfg Config, verifier Verifier, completer Completer, options ...Option) (*Machine, error) {
	cfg.Email = strings.TrimSpace(cfg.Email)
	if cfg.Email == "" {
		return nil, errors.New("[NewMachine] email is required")
	}
	if !cfg.Type.Valid() {
		return nil, errors.Errorf("[NewMachine] unknown verification type %q", cfg.Type)
	}
	if verifier == nil {
		return nil, errors.New("[NewMachine] verifier is required")
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = 60 * time.Second
	}
	if cfg.CodeExpiry <= 0 {
		cfg.CodeExpiry = 600 * time.Second
	}
	if cfg.AutoSubmitDelay <= 0 {
		cfg.AutoSubmitDelay = 300 * time.Millisecond
	}

	m := &Machine{
		cfg:       cfg,
		verifier:  verifier,
		completer: completer,
		screenID:  uuid.New().String(),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.sched == nil {
		m.sched = NewTimeScheduler()
	}
	if m.ctx == nil {
		m.ctx = context.Background()
	}
	m.ctx, m.cancel = context.WithCancel(m.ctx)
	m.resend.sched = m.sched
	m.expiry.sched = m.sched
	m.logger = log.With().
		Str("screen_id", m.screenID).
		Str("verification_type", string(cfg.Type)).
		Logger()

	m.mu.Lock()
	m.startResendCooldownLocked()
	if m.resetFlow() {
		m.startExpiryLocked()
	}
	m.mu.Unlock()

	m.logger.Debug().Msg("verification screen mounted")
	return m, nil
}

func (m *Machine) resetFlow() bool {
	return m.cfg.Type == transport.PasswordReset
}

// Snapshot returns the current screen state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		ScreenID:    m.screenID,
		State:       m.state,
		Slots:       m.code.Slots(),
		Focus:       m.focus,
		CanResend:   m.canResend,
		Expired:     m.expired,
		Message:     m.message,
		ErrorKind:   m.errKind,
		Failure:     m.failure,
		Shakes:      m.shakes,
		Destination: m.destination,
	}
	if m.resend.running() {
		s.ResendIn = m.resend.remaining
	}
	if m.expiry.running() {
		s.ExpiresIn = m.expiry.remaining
	}
	return s
}

// update runs fn under the lock and publishes the resulting snapshot.
func (m *Machine) update(fn func() bool) {
	m.mu.Lock()
	changed := fn()
	var s Snapshot
	if changed {
		s = m.snapshotLocked()
	}
	m.mu.Unlock()

	if changed {
		m.notify(s)
	}
}

func (m *Machine) notify(s Snapshot) {
	if m.onChange != nil {
		m.onChange(s)
	}
}

// acceptsInputLocked is false while submitting, once the code has expired,
// after success and after Close.
func (m *Machine) acceptsInputLocked() bool {
	return !m.closed && !m.expired && m.state != StateSubmitting && !m.state.Finished()
}

// editedLocked returns the screen to Entering after a rejected attempt.
func (m *Machine) editedLocked() {
	if m.state == StateInvalid || m.state == StateExpired {
		m.state = StateEntering
		m.message = ""
		m.errKind = autherrors.KindUnknown
		m.failure = FailureNone
	}
}

// Focus moves the cursor to slot i.
func (m *Machine) Focus(i int) {
	m.update(func() bool {
		if i < 0 || i >= CodeLength || m.closed {
			return false
		}
		m.focus = i
		return true
	})
}

// Enter handles input at slot i. Only the last character typed counts; it is
// upper-cased and dropped if the slot does not accept it. Empty input clears
// the slot. A filled slot moves focus to the next one.
func (m *Machine) Enter(i int, input string) {
	m.update(func() bool {
		if !m.acceptsInputLocked() || i < 0 || i >= CodeLength {
			return false
		}
		if input == "" {
			m.code.Clear(i)
			m.focus = i
			m.editedLocked()
			return true
		}

		runes := []rune(strings.ToUpper(input))
		if !m.code.Set(i, runes[len(runes)-1]) {
			return false
		}
		if i < CodeLength-1 {
			m.focus = i + 1
		} else {
			m.focus = i
		}
		m.editedLocked()
		m.scheduleAutoSubmitLocked()
		return true
	})
}

// Backspace handles the delete key at slot i. A filled slot is cleared in
// place. On an empty slot focus moves back one; the password-reset screen
// also clears that previous slot, the other flows leave it intact.
func (m *Machine) Backspace(i int) {
	m.update(func() bool {
		if !m.acceptsInputLocked() || i < 0 || i >= CodeLength {
			return false
		}
		switch {
		case !m.code.Empty(i):
			m.code.Clear(i)
			m.focus = i
		case i > 0:
			m.focus = i - 1
			if m.resetFlow() {
				m.code.Clear(i - 1)
			}
		default:
			return false
		}
		m.cancelAutoSubmitLocked()
		m.editedLocked()
		return true
	})
}

// Paste replaces the entered code with text laid out by Code.Paste.
func (m *Machine) Paste(text string) {
	m.update(func() bool {
		if !m.acceptsInputLocked() {
			return false
		}
		m.code.Paste(text)
		m.focus = m.code.FirstEmpty()
		m.cancelAutoSubmitLocked()
		m.editedLocked()
		m.scheduleAutoSubmitLocked()
		return true
	})
}

// scheduleAutoSubmitLocked submits a complete code after a short delay so
// the last keystroke renders before the loading state replaces it.
func (m *Machine) scheduleAutoSubmitLocked() {
	if !m.code.Complete() || !m.acceptsInputLocked() {
		return
	}
	m.cancelAutoSubmitLocked()
	m.debounceGen++
	gen := m.debounceGen
	m.debounce = m.sched.After(m.cfg.AutoSubmitDelay, func() { m.autoSubmit(gen) })
}

func (m *Machine) cancelAutoSubmitLocked() {
	if m.debounce != nil {
		m.debounce()
		m.debounce = nil
	}
}

func (m *Machine) autoSubmit(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.debounceGen || m.debounce == nil {
		m.mu.Unlock()
		return
	}
	m.debounce = nil
	ctx := m.ctx
	m.mu.Unlock()

	if err := m.Submit(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("auto-submit did not verify")
	}
}

// Submit verifies the entered code. A malformed code never reaches the
// network. While a verification is in flight further submits return
// ErrInFlight without calling the backend.
func (m *Machine) Submit(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state == StateSubmitting, m.resending:
		m.mu.Unlock()
		return ErrInFlight
	case m.state.Finished():
		m.mu.Unlock()
		return ErrFinished
	case m.expired:
		m.state = StateExpired
		m.message = ErrCodeTimedOut.Message
		m.errKind = ErrCodeTimedOut.Kind
		s := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(s)
		return ErrCodeTimedOut
	}

	code := m.code.String()
	if !ValidCode(code) {
		m.state = StateInvalid
		m.message = ErrIncompleteCode.Message
		m.errKind = ErrIncompleteCode.Kind
		m.failure = FailureNone
		m.shakes++
		s := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(s)
		return ErrIncompleteCode
	}

	m.cancelAutoSubmitLocked()
	m.state = StateSubmitting
	m.message = ""
	m.errKind = autherrors.KindUnknown
	m.failure = FailureNone
	s := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(s)

	m.logger.Debug().Msg("verifying code")
	resp, err := m.verifier.VerifyOTP(ctx, m.cfg.Email, code, m.cfg.Type)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	switch {
	case err != nil:
		return m.transportFailedLocked(err)
	case resp == nil:
		return m.transportFailedLocked(autherrors.New(autherrors.KindUnknown, msgUnknownResponse))
	case !resp.Success:
		return m.rejectedLocked(ctx, code, resp)
	}

	m.state = StateVerifiedNoAuth
	if resp.HasAuth() {
		m.state = StateVerifiedWithAuth
	}
	m.stopTimersLocked()
	s = m.snapshotLocked()
	m.mu.Unlock()
	m.notify(s)

	m.logger.Info().Str("state", s.State.String()).Msg("code verified")
	return m.complete(ctx, Result{Email: m.cfg.Email, Code: code, Type: m.cfg.Type, Response: resp})
}

// transportFailedLocked keeps the entered code so the user can retry, unless
// the reset code expired while the call was pending. Called with the lock
// held; releases it.
func (m *Machine) transportFailedLocked(err error) error {
	if m.expired {
		m.state = StateExpired
		m.message = ErrCodeTimedOut.Message
		m.errKind = ErrCodeTimedOut.Kind
	} else {
		m.state = StateEntering
		m.message = autherrors.UserMessage(err)
		m.errKind = autherrors.KindOf(err)
		m.rateLimitedLocked(err)
	}
	s := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(s)

	m.logger.Warn().Err(err).Msg("verification request failed")
	return errors.Wrap(err, "[Submit] transport")
}

// rejectedLocked handles a {success:false} answer. Called with the lock
// held; releases it.
func (m *Machine) rejectedLocked(ctx context.Context, code string, resp *transport.VerifyResponse) error {
	failure := ClassifyFailure(resp.Message)
	m.failure = failure
	m.logger.Info().Str("failure", failure.String()).Msg("code rejected")

	if failure == FailureAlreadyVerified {
		if m.resetFlow() {
			// The backend issues a fresh reset code in this case.
			m.code.Reset()
			m.focus = 0
			m.state = StateEntering
			m.message = msgNewCodeSent
			m.errKind = autherrors.KindUnknown
			m.failure = FailureNone
			m.startResendCooldownLocked()
			m.startExpiryLocked()
			s := m.snapshotLocked()
			m.mu.Unlock()
			m.notify(s)
			return nil
		}
		m.state = StateVerifiedNoAuth
		m.message = failure.Message()
		m.stopTimersLocked()
		s := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(s)
		return m.complete(ctx, Result{Email: m.cfg.Email, Code: code, Type: m.cfg.Type, Response: resp, AlreadyVerified: true})
	}

	m.code.Reset()
	m.focus = 0
	m.message = failure.Message()
	m.errKind = autherrors.KindInvalidOrExpiredCode
	m.shakes++
	m.state = StateInvalid
	if failure == FailureExpired || m.expired {
		m.state = StateExpired
		m.resend.stop()
		m.canResend = true
	}
	s := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(s)
	return autherrors.New(autherrors.KindInvalidOrExpiredCode, failure.Message())
}

func (m *Machine) complete(ctx context.Context, result Result) error {
	if m.completer == nil {
		return nil
	}
	route, err := m.completer.Complete(ctx, result)
	m.update(func() bool {
		m.destination = route
		if err != nil {
			m.message = autherrors.UserMessage(err)
			m.errKind = autherrors.KindOf(err)
		}
		return true
	})
	if err != nil {
		return errors.Wrap(err, "[Submit] complete")
	}
	return nil
}

// Resend asks for a new code. It is refused during the cooldown and while a
// verify is pending. Success clears the entered code and restarts the timers.
func (m *Machine) Resend(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case m.state.Finished():
		m.mu.Unlock()
		return ErrFinished
	case m.resending, m.state == StateSubmitting:
		m.mu.Unlock()
		return ErrInFlight
	case !m.canResend:
		m.mu.Unlock()
		return ErrResendCooldown
	}
	m.resending = true
	m.mu.Unlock()

	m.logger.Debug().Msg("resending code")
	resp, err := m.verifier.ResendOTP(ctx, m.cfg.Email, m.cfg.Type)

	m.mu.Lock()
	m.resending = false
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		m.message = autherrors.UserMessage(err)
		m.errKind = autherrors.KindOf(err)
		m.rateLimitedLocked(err)
		s := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(s)
		m.logger.Warn().Err(err).Msg("resend failed")
		return errors.Wrap(err, "[Resend] transport")
	}
	if resp == nil || !resp.Success {
		message := msgUnknownResponse
		if resp != nil && resp.Message != "" {
			message = resp.Message
		}
		if ClassifyFailure(message) == FailureAlreadyVerified && !m.resetFlow() {
			m.state = StateVerifiedNoAuth
			m.message = FailureAlreadyVerified.Message()
			m.failure = FailureAlreadyVerified
			m.stopTimersLocked()
			s := m.snapshotLocked()
			m.mu.Unlock()
			m.notify(s)
			return m.complete(ctx, Result{Email: m.cfg.Email, Type: m.cfg.Type, AlreadyVerified: true})
		}
		m.message = message
		m.errKind = autherrors.KindUnknown
		s := m.snapshotLocked()
		m.mu.Unlock()
		m.notify(s)
		return autherrors.New(autherrors.KindUnknown, message)
	}

	m.cancelAutoSubmitLocked()
	m.code.Reset()
	m.focus = 0
	m.state = StateEntering
	m.message = msgNewCodeSent
	m.errKind = autherrors.KindUnknown
	m.failure = FailureNone
	m.startResendCooldownLocked()
	if m.resetFlow() {
		m.startExpiryLocked()
	}
	s := m.snapshotLocked()
	m.mu.Unlock()
	m.notify(s)

	m.logger.Info().Msg("code resent")
	return nil
}

// rateLimitedLocked disables resend for the server's wait hint.
func (m *Machine) rateLimitedLocked(err error) {
	var authErr *autherrors.Error
	if !errors.As(err, &authErr) || authErr.Kind != autherrors.KindRateLimited {
		return
	}
	wait := authErr.RetryAfter
	if wait <= 0 {
		wait = m.cfg.ResendCooldown
	}
	m.canResend = false
	m.resend.start(wait, m.resendTick)
}

// StartResendCooldown disables resend for the configured cooldown. A running
// cooldown is cancelled first, so only one ever ticks.
func (m *Machine) StartResendCooldown() {
	m.update(func() bool {
		if m.closed {
			return false
		}
		m.startResendCooldownLocked()
		return true
	})
}

func (m *Machine) startResendCooldownLocked() {
	m.canResend = false
	m.resend.start(m.cfg.ResendCooldown, m.resendTick)
}

func (m *Machine) resendTick(gen uint64) {
	m.update(func() bool {
		if m.closed {
			return false
		}
		done, ok := m.resend.step(gen)
		if !ok {
			return false
		}
		if done {
			m.canResend = true
		}
		return true
	})
}

func (m *Machine) startExpiryLocked() {
	m.expired = false
	m.expiry.start(m.cfg.CodeExpiry, m.expiryTick)
}

func (m *Machine) expiryTick(gen uint64) {
	m.update(func() bool {
		if m.closed {
			return false
		}
		done, ok := m.expiry.step(gen)
		if !ok {
			return false
		}
		if done {
			m.expired = true
			m.cancelAutoSubmitLocked()
			m.resend.stop()
			m.canResend = true
			m.message = ErrCodeTimedOut.Message
			m.errKind = ErrCodeTimedOut.Kind
			m.failure = FailureExpired
			if m.state != StateSubmitting {
				m.state = StateExpired
			}
			m.logger.Info().Msg("reset code expired")
		}
		return true
	})
}

func (m *Machine) stopTimersLocked() {
	m.cancelAutoSubmitLocked()
	m.resend.stop()
	m.expiry.stop()
}

// Close tears the screen down: every timer is cancelled and in-flight calls
// see a cancelled context. Nothing entered on the screen is kept.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.stopTimersLocked()
	m.cancel()
	m.logger.Debug().Msg("verification screen closed")
}
