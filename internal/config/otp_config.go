package config

import "time"

type OTPConfig interface {
	GetResendCooldown() time.Duration
	GetResetCodeExpiry() time.Duration
	GetAutoSubmitDelay() time.Duration
}

type OTP struct{}

var _ OTPConfig = OTP{}

func (OTP) GetResendCooldown() time.Duration {
	return GetDuration("OTP_RESEND_COOLDOWN", 60*time.Second)
}

// GetResetCodeExpiry is the absolute lifetime of a password-reset code.
func (OTP) GetResetCodeExpiry() time.Duration {
	return GetDuration("OTP_RESET_EXPIRY", 600*time.Second)
}

func (OTP) GetAutoSubmitDelay() time.Duration {
	return GetDuration("OTP_AUTO_SUBMIT_DELAY", 300*time.Millisecond)
}
