package otp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/otp"
	"github.com/jrsteele09/rental-auth-client/otp/schedulerfake"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/jrsteele09/rental-auth-client/transport/transportfake"
	"github.com/stretchr/testify/require"
)

const (
	testEmail = "new.tenant@example.com"
	testCode  = "B123456"
)

type recordingCompleter struct {
	mu      sync.Mutex
	results []otp.Result
	route   string
	err     error
}

func (c *recordingCompleter) Complete(_ context.Context, result otp.Result) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
	return c.route, c.err
}

func (c *recordingCompleter) Results() []otp.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]otp.Result(nil), c.results...)
}

type testFixture struct {
	backend   *transportfake.Backend
	sched     *schedulerfake.Scheduler
	completer *recordingCompleter
	now       time.Time
}

func setupTestFixture(t *testing.T, verified bool, verificationType transport.VerificationType) *testFixture {
	t.Helper()

	f := &testFixture{
		sched:     schedulerfake.New(),
		completer: &recordingCompleter{route: "/tenant/dashboard"},
		now:       time.Now(),
	}
	f.backend = transportfake.New(
		transportfake.WithCodes(testCode, "C654321"),
		transportfake.WithNowFunc(func() time.Time { return f.now }),
	)
	_, err := f.backend.AddUser(transportfake.UserSpec{
		Email:    testEmail,
		Password: "Secret123",
		FullName: "New Tenant",
		Role:     "TENANT",
		Verified: verified,
	})
	require.NoError(t, err)

	resp, err := f.backend.RequestOTP(context.Background(), testEmail, verificationType)
	require.NoError(t, err)
	require.True(t, resp.Success)
	return f
}

func (f *testFixture) machine(t *testing.T, verificationType transport.VerificationType, options ...otp.Option) *otp.Machine {
	t.Helper()
	return f.machineWith(t, f.backend, verificationType, options...)
}

func (f *testFixture) machineWith(t *testing.T, verifier otp.Verifier, verificationType transport.VerificationType, options ...otp.Option) *otp.Machine {
	t.Helper()

	cfg := otp.Config{
		Email:           testEmail,
		Type:            verificationType,
		ResendCooldown:  60 * time.Second,
		CodeExpiry:      600 * time.Second,
		AutoSubmitDelay: 300 * time.Millisecond,
	}
	m, err := otp.NewMachine(cfg, verifier, f.completer, append([]otp.Option{otp.WithScheduler(f.sched)}, options...)...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func typeCode(m *otp.Machine, code string) {
	for i, r := range code {
		m.Enter(i, string(r))
	}
}

func TestNewMachineValidation(t *testing.T) {
	backend := transportfake.New()

	_, err := otp.NewMachine(otp.Config{Type: transport.Registration}, backend, nil)
	require.Error(t, err)

	_, err = otp.NewMachine(otp.Config{Email: testEmail, Type: "sms"}, backend, nil)
	require.Error(t, err)

	_, err = otp.NewMachine(otp.Config{Email: testEmail, Type: transport.Login}, nil, nil)
	require.Error(t, err)
}

func TestTypingFullCodeAutoSubmitsOnce(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	var changes []otp.Snapshot
	m := f.machine(t, transport.Registration, otp.WithOnChange(func(s otp.Snapshot) {
		changes = append(changes, s)
	}))

	typeCode(m, testCode)
	require.Equal(t, testCode, m.Snapshot().Code())
	require.Zero(t, f.backend.Calls(transportfake.OpVerifyOTP), "submit waits for the debounce")

	f.sched.Advance(300 * time.Millisecond)
	require.Equal(t, 1, f.backend.Calls(transportfake.OpVerifyOTP))

	s := m.Snapshot()
	require.Equal(t, otp.StateVerifiedWithAuth, s.State)
	require.Equal(t, "/tenant/dashboard", s.Destination)
	require.NotEmpty(t, s.ScreenID)
	require.Zero(t, f.sched.Active(), "timers stop once verified")

	results := f.completer.Results()
	require.Len(t, results, 1)
	require.Equal(t, testCode, results[0].Code)
	require.Equal(t, testEmail, results[0].Email)
	require.True(t, results[0].Response.HasAuth())
	require.False(t, results[0].AlreadyVerified)

	f.sched.Advance(time.Minute)
	require.Equal(t, 1, f.backend.Calls(transportfake.OpVerifyOTP))
	require.ErrorIs(t, m.Submit(context.Background()), otp.ErrFinished)
	require.NotEmpty(t, changes)
	require.Equal(t, otp.StateSubmitting, changes[len(changes)-3].State)
}

func TestEnter(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)

	t.Run("lowercase letter is upper-cased", func(t *testing.T) {
		m.Enter(0, "b")
		s := m.Snapshot()
		require.Equal(t, "B", s.Slots[0])
		require.Equal(t, 1, s.Focus)
	})

	t.Run("wrong class is ignored", func(t *testing.T) {
		m.Enter(1, "x")
		s := m.Snapshot()
		require.Equal(t, "", s.Slots[1])
		require.Equal(t, 1, s.Focus)
	})

	t.Run("last character wins", func(t *testing.T) {
		m.Enter(1, "47")
		require.Equal(t, "7", m.Snapshot().Slots[1])
	})

	t.Run("empty input clears", func(t *testing.T) {
		m.Enter(1, "")
		s := m.Snapshot()
		require.Equal(t, "", s.Slots[1])
		require.Equal(t, 1, s.Focus)
	})
}

func TestPasteWithoutLetterDoesNotSubmit(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)

	m.Paste("1234567")

	s := m.Snapshot()
	require.Equal(t, []string{"", "1", "2", "3", "4", "5", "6"}, s.Slots)
	require.Equal(t, 0, s.Focus)

	f.sched.Advance(time.Second)
	require.Zero(t, f.backend.Calls(transportfake.OpVerifyOTP))
	require.Equal(t, otp.StateEntering, m.Snapshot().State)
}

func TestPasteFullCodeAutoSubmits(t *testing.T) {
	f := setupTestFixture(t, false, transport.Login)
	m := f.machine(t, transport.Login)

	m.Paste("b-123-456")
	f.sched.Advance(300 * time.Millisecond)

	require.Equal(t, 1, f.backend.Calls(transportfake.OpVerifyOTP))
	require.Equal(t, otp.StateVerifiedWithAuth, m.Snapshot().State)
}

func TestSubmitIncompleteCodeStaysLocal(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)

	typeCode(m, "B12")
	err := m.Submit(context.Background())
	require.ErrorIs(t, err, autherrors.ErrMalformedInput)

	s := m.Snapshot()
	require.Zero(t, f.backend.Calls(transportfake.OpVerifyOTP))
	require.Equal(t, otp.StateInvalid, s.State)
	require.Equal(t, 1, s.Shakes)
	require.Equal(t, "B12", s.Code())
	require.NotEmpty(t, s.Message)

	m.Enter(3, "3")
	require.Equal(t, otp.StateEntering, m.Snapshot().State)
	require.Empty(t, m.Snapshot().Message)
}

func TestSubmitWrongCode(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)

	typeCode(m, "B000000")
	err := m.Submit(context.Background())
	require.ErrorIs(t, err, autherrors.ErrInvalidOrExpiredCode)

	s := m.Snapshot()
	require.Equal(t, otp.StateInvalid, s.State)
	require.Equal(t, otp.FailureInvalid, s.Failure)
	require.Equal(t, 1, s.Shakes)
	require.Empty(t, s.Code(), "a rejected code is cleared")
	require.Equal(t, 0, s.Focus)
	require.False(t, s.CanResend)

	f.sched.Advance(time.Second)
	require.Equal(t, 1, f.backend.Calls(transportfake.OpVerifyOTP), "the cancelled debounce never fires")

	typeCode(m, testCode)
	require.Equal(t, otp.StateEntering, m.Snapshot().State)
	require.NoError(t, m.Submit(context.Background()))
	require.Equal(t, otp.StateVerifiedWithAuth, m.Snapshot().State)
}

func TestServerExpiredEnablesResendImmediately(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)

	f.sched.Advance(20 * time.Second)
	s := m.Snapshot()
	require.False(t, s.CanResend)
	require.Equal(t, 40, s.ResendIn)

	f.now = f.now.Add(11 * time.Minute)
	typeCode(m, testCode)
	err := m.Submit(context.Background())
	require.ErrorIs(t, err, autherrors.ErrInvalidOrExpiredCode)

	s = m.Snapshot()
	require.Equal(t, otp.StateExpired, s.State)
	require.Equal(t, otp.FailureExpired, s.Failure)
	require.True(t, s.CanResend)
	require.Zero(t, s.ResendIn)
	require.False(t, s.Expired, "only the expiry timer marks the code expired")
	require.Empty(t, s.Code())
	require.Zero(t, f.sched.ActiveEvery())

	require.NoError(t, m.Resend(context.Background()))
	s = m.Snapshot()
	require.Equal(t, otp.StateEntering, s.State)
	require.False(t, s.CanResend)
	require.Equal(t, "C654321", f.backend.LastCode(testEmail, transport.Registration))
}

func TestSubmitIsSingleFlight(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)
	gate := f.backend.Hold(transportfake.OpVerifyOTP)

	typeCode(m, testCode)

	done := make(chan error, 1)
	go func() { done <- m.Submit(context.Background()) }()
	<-gate.Entered()

	require.ErrorIs(t, m.Submit(context.Background()), otp.ErrInFlight)
	m.Enter(6, "9")
	m.Backspace(6)
	m.Paste("C999999")
	f.sched.Advance(time.Second)

	s := m.Snapshot()
	require.Equal(t, otp.StateSubmitting, s.State)
	require.Equal(t, testCode, s.Code(), "input is locked while submitting")

	gate.Release()
	require.NoError(t, <-done)
	require.Equal(t, 1, f.backend.Calls(transportfake.OpVerifyOTP))
	require.Equal(t, otp.StateVerifiedWithAuth, m.Snapshot().State)
}

func TestResendIsRefusedWhileVerifying(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)
	gate := f.backend.Hold(transportfake.OpVerifyOTP)
	f.sched.Advance(time.Minute)
	require.True(t, m.Snapshot().CanResend)

	typeCode(m, testCode)
	done := make(chan error, 1)
	go func() { done <- m.Submit(context.Background()) }()
	<-gate.Entered()

	require.ErrorIs(t, m.Resend(context.Background()), otp.ErrInFlight)
	require.Zero(t, f.backend.Calls(transportfake.OpResendOTP))

	typeCode(m, "C654321")
	require.ErrorIs(t, m.Submit(context.Background()), otp.ErrInFlight)
	f.sched.Advance(time.Second)

	s := m.Snapshot()
	require.Equal(t, otp.StateSubmitting, s.State)
	require.Equal(t, testCode, s.Code())

	gate.Release()
	require.NoError(t, <-done)
	require.Equal(t, 1, f.backend.Calls(transportfake.OpVerifyOTP))
	require.Equal(t, otp.StateVerifiedWithAuth, m.Snapshot().State)
}

func TestSubmitIsRefusedWhileResending(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)
	gate := f.backend.Hold(transportfake.OpResendOTP)
	f.sched.Advance(time.Minute)

	done := make(chan error, 1)
	go func() { done <- m.Resend(context.Background()) }()
	<-gate.Entered()

	typeCode(m, testCode)
	require.ErrorIs(t, m.Submit(context.Background()), otp.ErrInFlight)
	require.ErrorIs(t, m.Resend(context.Background()), otp.ErrInFlight)
	require.Zero(t, f.backend.Calls(transportfake.OpVerifyOTP))

	gate.Release()
	require.NoError(t, <-done)
	s := m.Snapshot()
	require.Equal(t, otp.StateEntering, s.State)
	require.Empty(t, s.Code(), "a new code clears what was typed")
	require.Equal(t, 1, f.backend.Calls(transportfake.OpResendOTP))
}

func TestSubmitNetworkFailureKeepsCode(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)
	f.backend.FailNext(transportfake.OpVerifyOTP, autherrors.New(autherrors.KindNetworkUnreachable, ""))

	typeCode(m, testCode)
	err := m.Submit(context.Background())
	require.ErrorIs(t, err, autherrors.ErrNetworkUnreachable)

	s := m.Snapshot()
	require.Equal(t, otp.StateEntering, s.State)
	require.Equal(t, testCode, s.Code())
	require.Equal(t, autherrors.KindNetworkUnreachable, s.ErrorKind)
	require.NotEmpty(t, s.Message)

	require.NoError(t, m.Submit(context.Background()))
	require.Equal(t, otp.StateVerifiedWithAuth, m.Snapshot().State)
}

func TestAlreadyVerifiedRoutesToLogin(t *testing.T) {
	f := setupTestFixture(t, true, transport.Registration)
	f.completer.route = "/login"
	m := f.machine(t, transport.Registration)

	typeCode(m, testCode)
	require.NoError(t, m.Submit(context.Background()))

	s := m.Snapshot()
	require.Equal(t, otp.StateVerifiedNoAuth, s.State)
	require.Equal(t, otp.FailureAlreadyVerified, s.Failure)
	require.Equal(t, "/login", s.Destination)

	results := f.completer.Results()
	require.Len(t, results, 1)
	require.True(t, results[0].AlreadyVerified)
}

func TestVerifiedWithoutSession(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	f.backend = transportfake.New(transportfake.WithCodes(testCode), transportfake.WithoutAuthOnVerify())
	_, err := f.backend.AddUser(transportfake.UserSpec{Email: testEmail, Password: "Secret123"})
	require.NoError(t, err)
	_, err = f.backend.RequestOTP(context.Background(), testEmail, transport.Registration)
	require.NoError(t, err)

	m := f.machine(t, transport.Registration)
	typeCode(m, testCode)
	require.NoError(t, m.Submit(context.Background()))
	require.Equal(t, otp.StateVerifiedNoAuth, m.Snapshot().State)
}

func TestCompleterErrorIsSurfaced(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	f.completer.err = autherrors.New(autherrors.KindCorruptedSession, "")
	m := f.machine(t, transport.Registration)

	typeCode(m, testCode)
	err := m.Submit(context.Background())
	require.ErrorIs(t, err, autherrors.ErrCorruptedSession)
	require.Equal(t, autherrors.KindCorruptedSession, m.Snapshot().ErrorKind)
}

func TestResendCooldown(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)

	s := m.Snapshot()
	require.False(t, s.CanResend)
	require.Equal(t, 60, s.ResendIn)
	require.ErrorIs(t, m.Resend(context.Background()), otp.ErrResendCooldown)
	require.Zero(t, f.backend.Calls(transportfake.OpResendOTP))

	f.sched.Advance(59 * time.Second)
	require.Equal(t, 1, m.Snapshot().ResendIn)
	f.sched.Advance(time.Second)
	s = m.Snapshot()
	require.True(t, s.CanResend)
	require.Zero(t, s.ResendIn)
	require.Zero(t, f.sched.ActiveEvery())

	typeCode(m, "B12")
	require.NoError(t, m.Resend(context.Background()))
	s = m.Snapshot()
	require.False(t, s.CanResend)
	require.Equal(t, 60, s.ResendIn)
	require.Empty(t, s.Code())
	require.NotEmpty(t, s.Message)
	require.Equal(t, 1, f.sched.ActiveEvery())

	t.Run("restarting keeps a single countdown", func(t *testing.T) {
		f.sched.Advance(10 * time.Second)
		m.StartResendCooldown()
		m.StartResendCooldown()
		require.Equal(t, 1, f.sched.ActiveEvery())
		require.Equal(t, 60, m.Snapshot().ResendIn)

		f.sched.Advance(time.Second)
		require.Equal(t, 59, m.Snapshot().ResendIn, "one tick per second")
	})
}

func TestResendRateLimited(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)
	f.sched.Advance(time.Minute)

	f.backend.FailNext(transportfake.OpResendOTP, &autherrors.Error{Kind: autherrors.KindRateLimited, RetryAfter: 30 * time.Second})
	err := m.Resend(context.Background())
	require.ErrorIs(t, err, autherrors.ErrRateLimited)

	s := m.Snapshot()
	require.False(t, s.CanResend)
	require.Equal(t, 30, s.ResendIn)
	require.Equal(t, autherrors.KindRateLimited, s.ErrorKind)
}

func TestResendOtherFailureStaysAvailable(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)
	f.sched.Advance(time.Minute)

	f.backend.FailNext(transportfake.OpResendOTP, autherrors.New(autherrors.KindNetworkUnreachable, ""))
	require.Error(t, m.Resend(context.Background()))
	require.True(t, m.Snapshot().CanResend)
}

func TestBackspace(t *testing.T) {
	tests := []struct {
		name      string
		kind      transport.VerificationType
		wantSlots []string
	}{
		{
			name:      "registration moves focus only",
			kind:      transport.Registration,
			wantSlots: []string{"B", "1", "2", "", "", "", ""},
		},
		{
			name:      "password reset clears the previous slot",
			kind:      transport.PasswordReset,
			wantSlots: []string{"B", "1", "", "", "", "", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, true, tt.kind)
			m := f.machine(t, tt.kind)

			typeCode(m, "B12")
			m.Backspace(3)

			s := m.Snapshot()
			require.Equal(t, tt.wantSlots, s.Slots)
			require.Equal(t, 2, s.Focus)
		})
	}

	t.Run("filled slot is cleared in place", func(t *testing.T) {
		f := setupTestFixture(t, false, transport.Registration)
		m := f.machine(t, transport.Registration)

		typeCode(m, "B12")
		m.Backspace(1)
		s := m.Snapshot()
		require.Equal(t, []string{"B", "", "2", "", "", "", ""}, s.Slots)
		require.Equal(t, 1, s.Focus)
	})
}

func TestResetCodeExpiry(t *testing.T) {
	f := setupTestFixture(t, true, transport.PasswordReset)
	f.completer.route = "/reset-password"
	m := f.machine(t, transport.PasswordReset)

	s := m.Snapshot()
	require.Equal(t, 600, s.ExpiresIn)
	require.Equal(t, 2, f.sched.ActiveEvery())

	f.sched.Advance(10 * time.Minute)
	s = m.Snapshot()
	require.True(t, s.Expired)
	require.Equal(t, otp.StateExpired, s.State)
	require.True(t, s.CanResend)
	require.Zero(t, f.sched.ActiveEvery())

	typeCode(m, testCode)
	require.Empty(t, m.Snapshot().Code(), "input is ignored until a new code is sent")
	require.ErrorIs(t, m.Submit(context.Background()), otp.ErrCodeTimedOut)
	require.Zero(t, f.backend.Calls(transportfake.OpVerifyOTP))

	require.NoError(t, m.Resend(context.Background()))
	s = m.Snapshot()
	require.False(t, s.Expired)
	require.Equal(t, 600, s.ExpiresIn)
	require.Equal(t, otp.StateEntering, s.State)

	typeCode(m, "C654321")
	require.NoError(t, m.Submit(context.Background()))
	s = m.Snapshot()
	require.Equal(t, otp.StateVerifiedNoAuth, s.State)
	require.Equal(t, "/reset-password", s.Destination)
}

func TestResetCodeExpiresDuringFailedSubmit(t *testing.T) {
	f := setupTestFixture(t, true, transport.PasswordReset)
	m := f.machine(t, transport.PasswordReset)
	f.backend.FailNext(transportfake.OpVerifyOTP, autherrors.New(autherrors.KindNetworkUnreachable, ""))
	gate := f.backend.Hold(transportfake.OpVerifyOTP)

	typeCode(m, testCode)
	done := make(chan error, 1)
	go func() { done <- m.Submit(context.Background()) }()
	<-gate.Entered()

	f.sched.Advance(10 * time.Minute)
	s := m.Snapshot()
	require.True(t, s.Expired)
	require.Equal(t, otp.StateSubmitting, s.State)

	gate.Release()
	require.ErrorIs(t, <-done, autherrors.ErrNetworkUnreachable)

	s = m.Snapshot()
	require.Equal(t, otp.StateExpired, s.State)
	require.Equal(t, autherrors.KindInvalidOrExpiredCode, s.ErrorKind)
	require.True(t, s.CanResend)
	require.ErrorIs(t, m.Submit(context.Background()), otp.ErrCodeTimedOut)
	require.Equal(t, 1, f.backend.Calls(transportfake.OpVerifyOTP))
}

// scriptedVerifier answers every verify with the same response.
type scriptedVerifier struct {
	*transportfake.Backend
	response *transport.VerifyResponse
}

func (v scriptedVerifier) VerifyOTP(context.Context, string, string, transport.VerificationType) (*transport.VerifyResponse, error) {
	return v.response, nil
}

func TestResetAlreadyVerifiedMeansNewCode(t *testing.T) {
	f := setupTestFixture(t, true, transport.PasswordReset)
	verifier := scriptedVerifier{
		Backend:  f.backend,
		response: &transport.VerifyResponse{Success: false, Message: transportfake.MsgAlreadyVerified},
	}
	m := f.machineWith(t, verifier, transport.PasswordReset)

	f.sched.Advance(5 * time.Minute)
	typeCode(m, testCode)
	require.NoError(t, m.Submit(context.Background()))

	s := m.Snapshot()
	require.Equal(t, otp.StateEntering, s.State)
	require.Empty(t, s.Code())
	require.Equal(t, 600, s.ExpiresIn)
	require.Equal(t, 60, s.ResendIn)
	require.Empty(t, f.completer.Results())
}

func TestClose(t *testing.T) {
	f := setupTestFixture(t, true, transport.PasswordReset)
	m := f.machine(t, transport.PasswordReset)

	typeCode(m, testCode)
	require.Equal(t, 3, f.sched.Active(), "two countdowns and the debounce")

	m.Close()
	m.Close()
	require.Zero(t, f.sched.Active())

	f.sched.Advance(time.Hour)
	require.Zero(t, f.backend.Calls(transportfake.OpVerifyOTP))
	require.ErrorIs(t, m.Submit(context.Background()), otp.ErrClosed)
	require.ErrorIs(t, m.Resend(context.Background()), otp.ErrClosed)
}

func TestCloseCancelsInFlightSubmit(t *testing.T) {
	f := setupTestFixture(t, false, transport.Registration)
	m := f.machine(t, transport.Registration)
	gate := f.backend.Hold(transportfake.OpVerifyOTP)

	typeCode(m, testCode)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sched.Advance(time.Second)
	}()
	<-gate.Entered()

	m.Close()
	<-done
	require.Empty(t, f.completer.Results())
	require.Equal(t, otp.StateSubmitting, m.Snapshot().State)
}
