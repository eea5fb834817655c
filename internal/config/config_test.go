package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/rental-auth-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := config.New()
	require.Equal(t, 60*time.Second, c.GetResendCooldown())
	require.Equal(t, 600*time.Second, c.GetResetCodeExpiry())
	require.Equal(t, 300*time.Millisecond, c.GetAutoSubmitDelay())
	require.Equal(t, 15*time.Second, c.GetRequestTimeout())
	require.Equal(t, "DEV", c.GetEnv())
	require.Empty(t, c.GetRedisAddr())
	require.True(t, c.GetRememberAfterVerification())
}

func TestGetDuration(t *testing.T) {
	t.Setenv("OTP_RESEND_COOLDOWN", "30")
	t.Setenv("OTP_RESET_EXPIRY", "5m")
	t.Setenv("OTP_AUTO_SUBMIT_DELAY", "nonsense")

	c := config.New()
	require.Equal(t, 30*time.Second, c.GetResendCooldown())
	require.Equal(t, 5*time.Minute, c.GetResetCodeExpiry())
	require.Equal(t, 300*time.Millisecond, c.GetAutoSubmitDelay())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("API_BASE_URL=https://api.rentals.test\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("API_BASE_URL") })

	c := config.Load(file)
	require.Equal(t, "https://api.rentals.test", c.GetAPIBaseURL())
}
