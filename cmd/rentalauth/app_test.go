package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/rental-auth-client/internal/config"
	"github.com/jrsteele09/rental-auth-client/transport/transportfake"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "tenant@example.com"
	testPassword = "Secret123"
)

type testFixture struct {
	backend *transportfake.Backend
	out     bytes.Buffer
}

func setupTestFixture(t *testing.T, options ...transportfake.Option) *testFixture {
	t.Helper()

	f := &testFixture{backend: transportfake.New(options...)}
	_, err := f.backend.AddUser(transportfake.UserSpec{
		Email:    testEmail,
		Password: testPassword,
		FullName: "Tess Tenant",
		Role:     "TENANT",
		Verified: true,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(transportfake.Handler(f.backend))
	t.Cleanup(srv.Close)

	t.Setenv("API_BASE_URL", srv.URL)
	t.Setenv("FOLDER", t.TempDir())
	t.Setenv("REDIS_ADDR", "")
	return f
}

// app builds a fresh client over the same data folder, as a new process would.
func (f *testFixture) app(t *testing.T, input string) *app {
	t.Helper()

	a, err := newApp(context.Background(), config.New(), strings.NewReader(input), &f.out)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestLoginStatusLogout(t *testing.T) {
	ctx := context.Background()
	f := setupTestFixture(t)

	require.NoError(t, f.app(t, "").login(ctx, []string{"-email", testEmail, "-password", testPassword}))
	require.Contains(t, f.out.String(), "Signed in as Tess Tenant (TENANT)")
	require.Contains(t, f.out.String(), "-> /tenant/dashboard")

	f.out.Reset()
	require.NoError(t, f.app(t, "").status(ctx))
	require.Contains(t, f.out.String(), "Home: /tenant/dashboard", "the session survives a restart")

	a := f.app(t, "")
	require.NoError(t, a.logout(ctx, []string{"-wait"}))
	require.Equal(t, 1, f.backend.Calls(transportfake.OpLogout))

	f.out.Reset()
	require.NoError(t, f.app(t, "").status(ctx))
	require.Contains(t, f.out.String(), "Not signed in.")
}

func TestLoginPromptsForPassword(t *testing.T) {
	f := setupTestFixture(t)

	err := f.app(t, "wrong\n").login(context.Background(), []string{"-email", testEmail})
	require.Error(t, err)
	require.Contains(t, f.out.String(), "Invalid email or password.")
}

func TestRegisterAndVerify(t *testing.T) {
	f := setupTestFixture(t, transportfake.WithCodes("B123456"))

	input := "A000000\nb123456\n"
	err := f.app(t, input).register(context.Background(), []string{
		"-email", "new@example.com",
		"-password", testPassword,
		"-name", "New Landlord",
		"-role", "landlord",
	})
	require.NoError(t, err)
	require.Contains(t, f.out.String(), "incorrect")
	require.Contains(t, f.out.String(), "-> /landlord/dashboard")
	require.Equal(t, 2, f.backend.Calls(transportfake.OpVerifyOTP))
}

func TestVerifyCancelled(t *testing.T) {
	f := setupTestFixture(t)

	err := f.app(t, "\n").verify(context.Background(), []string{"-email", testEmail, "-type", "login"})
	require.ErrorIs(t, err, errCancelled)
	require.Zero(t, f.backend.Calls(transportfake.OpVerifyOTP))

	err = f.app(t, "").verify(context.Background(), []string{"-email", testEmail, "-type", "password_reset"})
	require.Error(t, err)
}

func TestResetPassword(t *testing.T) {
	f := setupTestFixture(t, transportfake.WithCodes("R123456"))

	input := strings.Join([]string{"R123456", "short", "short", "Fresh4567", "Fresh4567"}, "\n") + "\n"
	err := f.app(t, input).reset(context.Background(), []string{"-email", testEmail})
	require.NoError(t, err)

	out := f.out.String()
	require.Contains(t, out, "-> /reset-password")
	require.Contains(t, out, "at least 8 characters")
	require.Contains(t, out, "Password updated.")
	require.True(t, f.backend.Password(testEmail, "Fresh4567"))
}

func TestDefaultDevAddr(t *testing.T) {
	require.Equal(t, ":9090", defaultDevAddr("http://localhost:9090"))
	require.Equal(t, ":8080", defaultDevAddr("https://api.example.com"))
}
