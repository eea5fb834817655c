// Package transportfake is an in-memory backend implementing
// transport.Transport, used by tests and the CLI's offline mode.
package transportfake

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	autherrors "github.com/jrsteele09/rental-auth-client/internal/errors"
	"github.com/jrsteele09/rental-auth-client/transport"
	"github.com/jrsteele09/rental-auth-client/users"
)

var _ transport.Transport = (*Backend)(nil)

// Op names a backend call for counters, gates and injected errors.
type Op string

const (
	OpLogin         Op = "login"
	OpRegister      Op = "register"
	OpRequestOTP    Op = "request_otp"
	OpVerifyOTP     Op = "verify_otp"
	OpResendOTP     Op = "resend_otp"
	OpResetPassword Op = "reset_password"
	OpLogout        Op = "logout"
)

// Server messages, matching the wording the client classifies.
const (
	MsgOTPSent          = "Verification code sent"
	MsgOTPExpired       = "OTP expired"
	MsgOTPInvalid       = "Invalid OTP"
	MsgOTPNotFound      = "OTP not found"
	MsgAlreadyVerified  = "Email already verified"
	MsgUserNotFound     = "User not found"
	MsgAlreadyExists    = "Email already registered"
	MsgPasswordReset    = "Password reset successful"
	MsgVerified         = "Verification successful"
	MsgResetNotVerified = "Reset code has not been verified"
)

type account struct {
	user         *users.User
	passwordHash string
	locked       bool
}

type issuedCode struct {
	code     string
	issuedAt time.Time
	verified bool
}

type codeKey struct {
	email string
	kind  transport.VerificationType
}

// UserSpec seeds an account.
type UserSpec struct {
	ID       string
	Email    string
	Password string
	FullName string
	Role     string
	Verified bool
	Locked   bool
}

type Backend struct {
	lock     sync.RWMutex
	accounts map[string]*account // email -> account
	codes    map[codeKey]*issuedCode
	calls    map[Op]int
	errs     map[Op]error
	gates    map[Op]*Gate
	revoked  map[string]struct{}

	signer         *hmacSigner
	nowFunc        func() time.Time
	codeGenerator  func() string
	codeTTL        time.Duration
	tokenTTL       time.Duration
	loginNeedsCode bool
	noAuthOnVerify bool
	onIssue        func(email string, kind transport.VerificationType, code string)
}

type Option func(*Backend)

func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) {
		b.nowFunc = now
	}
}

// WithCodes makes the backend hand out the given codes in order, then random ones.
func WithCodes(codes ...string) Option {
	return func(b *Backend) {
		queue := append([]string(nil), codes...)
		b.codeGenerator = func() string {
			if len(queue) == 0 {
				return randomCode()
			}
			next := queue[0]
			queue = queue[1:]
			return next
		}
	}
}

func WithCodeTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.codeTTL = ttl
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(b *Backend) {
		b.tokenTTL = ttl
	}
}

// WithLoginCode makes Login answer with a code challenge instead of a token.
func WithLoginCode() Option {
	return func(b *Backend) {
		b.loginNeedsCode = true
	}
}

// WithoutAuthOnVerify makes successful verification return no session.
func WithoutAuthOnVerify() Option {
	return func(b *Backend) {
		b.noAuthOnVerify = true
	}
}

// WithCodeNotifier is called with every code issued, standing in for the
// email the real backend sends. It runs with the backend locked.
func WithCodeNotifier(fn func(email string, kind transport.VerificationType, code string)) Option {
	return func(b *Backend) {
		b.onIssue = fn
	}
}

func New(options ...Option) *Backend {
	b := &Backend{
		accounts: make(map[string]*account),
		codes:    make(map[codeKey]*issuedCode),
		calls:    make(map[Op]int),
		errs:     make(map[Op]error),
		gates:    make(map[Op]*Gate),
		revoked:  make(map[string]struct{}),
		signer:   newHMACSigner(uuid.New().String()),
		nowFunc:  time.Now,
		codeTTL:  10 * time.Minute,
		tokenTTL: time.Hour,
	}
	for _, opt := range options {
		opt(b)
	}
	if b.codeGenerator == nil {
		b.codeGenerator = randomCode
	}
	return b
}

// AddUser seeds an account with a bcrypt-hashed password.
func (b *Backend) AddUser(spec UserSpec) (*users.User, error) {
	hash, err := users.HashPassword(spec.Password)
	if err != nil {
		return nil, err
	}
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}
	user := &users.User{
		ID:            spec.ID,
		Email:         spec.Email,
		FullName:      spec.FullName,
		Role:          spec.Role,
		EmailVerified: spec.Verified,
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.accounts[normalise(spec.Email)] = &account{user: user, passwordHash: hash, locked: spec.Locked}
	copied := *user
	return &copied, nil
}

// FailNext makes the next call to op return err.
func (b *Backend) FailNext(op Op, err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.errs[op] = err
}

// Calls returns how many times op has been invoked.
func (b *Backend) Calls(op Op) int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.calls[op]
}

// LastCode returns the code currently issued to email for a flow, as if read
// from the user's inbox.
func (b *Backend) LastCode(email string, kind transport.VerificationType) string {
	b.lock.RLock()
	defer b.lock.RUnlock()
	if c, ok := b.codes[codeKey{normalise(email), kind}]; ok {
		return c.code
	}
	return ""
}

// Revoked reports whether Logout was called with token.
func (b *Backend) Revoked(token string) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	_, ok := b.revoked[token]
	return ok
}

// Password reports whether password currently opens email's account.
func (b *Backend) Password(email, password string) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	acc, ok := b.accounts[normalise(email)]
	return ok && users.CheckPasswordHash(password, acc.passwordHash)
}

// begin counts the call, waits on any gate and returns an injected error.
func (b *Backend) begin(ctx context.Context, op Op) error {
	b.lock.Lock()
	b.calls[op]++
	gate := b.gates[op]
	err := b.errs[op]
	delete(b.errs, op)
	b.lock.Unlock()

	if gate != nil {
		if gateErr := gate.wait(ctx); gateErr != nil {
			return autherrors.WithCause(autherrors.KindNetworkUnreachable, "", gateErr)
		}
	}
	return err
}

func (b *Backend) Login(ctx context.Context, email, password string) (*transport.LoginResponse, error) {
	if err := b.begin(ctx, OpLogin); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, ok := b.accounts[normalise(email)]
	if !ok || !users.CheckPasswordHash(password, acc.passwordHash) {
		return nil, &autherrors.Error{Kind: autherrors.KindInvalidCredentials, Field: "password"}
	}
	if acc.locked {
		return nil, autherrors.New(autherrors.KindAccountLocked, "")
	}
	if !acc.user.EmailVerified {
		return nil, &autherrors.Error{Kind: autherrors.KindAccountNotVerified, Field: "email"}
	}
	if b.loginNeedsCode {
		b.issue(acc.user.Email, transport.Login)
		return &transport.LoginResponse{Message: MsgOTPSent}, nil
	}

	tok, err := b.signer.sessionToken(acc.user, b.nowFunc(), b.tokenTTL)
	if err != nil {
		return nil, err
	}
	user := *acc.user
	return &transport.LoginResponse{Token: tok, User: &user, Role: user.Role}, nil
}

func (b *Backend) Register(ctx context.Context, reg transport.RegisterRequest) (*transport.OTPResponse, error) {
	if err := b.begin(ctx, OpRegister); err != nil {
		return nil, err
	}
	hash, err := users.HashPassword(reg.Password)
	if err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	email := normalise(reg.Email)
	if _, exists := b.accounts[email]; exists {
		return &transport.OTPResponse{Success: false, Message: MsgAlreadyExists}, nil
	}
	b.accounts[email] = &account{
		user: &users.User{
			ID:          uuid.New().String(),
			Email:       reg.Email,
			FullName:    reg.FullName,
			Role:        strings.ToUpper(reg.Role),
			PhoneNumber: reg.PhoneNumber,
		},
		passwordHash: hash,
	}
	b.issue(reg.Email, transport.Registration)
	return &transport.OTPResponse{Success: true, Message: MsgOTPSent}, nil
}

func (b *Backend) RequestOTP(ctx context.Context, email string, kind transport.VerificationType) (*transport.OTPResponse, error) {
	if err := b.begin(ctx, OpRequestOTP); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if _, ok := b.accounts[normalise(email)]; !ok {
		return &transport.OTPResponse{Success: false, Message: MsgUserNotFound}, nil
	}
	b.issue(email, kind)
	return &transport.OTPResponse{Success: true, Message: MsgOTPSent}, nil
}

func (b *Backend) ResendOTP(ctx context.Context, email string, kind transport.VerificationType) (*transport.OTPResponse, error) {
	if err := b.begin(ctx, OpResendOTP); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, ok := b.accounts[normalise(email)]
	if !ok {
		return &transport.OTPResponse{Success: false, Message: MsgUserNotFound}, nil
	}
	if kind == transport.Registration && acc.user.EmailVerified {
		return &transport.OTPResponse{Success: false, Message: MsgAlreadyVerified}, nil
	}
	b.issue(email, kind)
	return &transport.OTPResponse{Success: true, Message: MsgOTPSent}, nil
}

func (b *Backend) VerifyOTP(ctx context.Context, email, code string, kind transport.VerificationType) (*transport.VerifyResponse, error) {
	if err := b.begin(ctx, OpVerifyOTP); err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, ok := b.accounts[normalise(email)]
	if !ok {
		return &transport.VerifyResponse{Success: false, Message: MsgUserNotFound}, nil
	}
	if kind == transport.Registration && acc.user.EmailVerified {
		return &transport.VerifyResponse{Success: false, Message: MsgAlreadyVerified}, nil
	}

	key := codeKey{normalise(email), kind}
	issued, ok := b.codes[key]
	if !ok {
		return &transport.VerifyResponse{Success: false, Message: MsgOTPNotFound}, nil
	}
	if b.nowFunc().Sub(issued.issuedAt) > b.codeTTL {
		return &transport.VerifyResponse{Success: false, Message: MsgOTPExpired}, nil
	}
	if issued.code != code {
		return &transport.VerifyResponse{Success: false, Message: MsgOTPInvalid}, nil
	}

	if kind == transport.PasswordReset {
		// Kept for the reset call that follows.
		issued.verified = true
		return &transport.VerifyResponse{Success: true, Message: MsgVerified}, nil
	}

	delete(b.codes, key)
	acc.user.EmailVerified = true
	if b.noAuthOnVerify {
		return &transport.VerifyResponse{Success: true, Message: MsgVerified}, nil
	}

	tok, err := b.signer.sessionToken(acc.user, b.nowFunc(), b.tokenTTL)
	if err != nil {
		return nil, err
	}
	user := *acc.user
	return &transport.VerifyResponse{Success: true, Message: MsgVerified, Token: tok, User: &user}, nil
}

func (b *Backend) ResetPassword(ctx context.Context, email, code, newPassword string) (*transport.OTPResponse, error) {
	if err := b.begin(ctx, OpResetPassword); err != nil {
		return nil, err
	}
	hash, err := users.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	acc, ok := b.accounts[normalise(email)]
	if !ok {
		return &transport.OTPResponse{Success: false, Message: MsgUserNotFound}, nil
	}
	key := codeKey{normalise(email), transport.PasswordReset}
	issued, ok := b.codes[key]
	switch {
	case !ok:
		return &transport.OTPResponse{Success: false, Message: MsgOTPNotFound}, nil
	case issued.code != code:
		return &transport.OTPResponse{Success: false, Message: MsgOTPInvalid}, nil
	case !issued.verified:
		return &transport.OTPResponse{Success: false, Message: MsgResetNotVerified}, nil
	case b.nowFunc().Sub(issued.issuedAt) > b.codeTTL:
		return &transport.OTPResponse{Success: false, Message: MsgOTPExpired}, nil
	}

	delete(b.codes, key)
	acc.passwordHash = hash
	return &transport.OTPResponse{Success: true, Message: MsgPasswordReset}, nil
}

func (b *Backend) Logout(ctx context.Context, token string) error {
	if err := b.begin(ctx, OpLogout); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	b.revoked[token] = struct{}{}
	return nil
}

// issue replaces any outstanding code for email and flow. Callers hold the lock.
func (b *Backend) issue(email string, kind transport.VerificationType) {
	code := b.codeGenerator()
	b.codes[codeKey{normalise(email), kind}] = &issuedCode{
		code:     code,
		issuedAt: b.nowFunc(),
	}
	if b.onIssue != nil {
		b.onIssue(email, kind, code)
	}
}

func normalise(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// randomCode returns a letter followed by six digits.
func randomCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(26*1_000_000))
	if err != nil {
		panic(fmt.Sprintf("transportfake: random code: %v", err))
	}
	v := n.Int64()
	return fmt.Sprintf("%c%06d", letters[v/1_000_000], v%1_000_000)
}
