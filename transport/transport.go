// Package transport describes the backend calls the auth core depends on.
// Implementations classify failures into internal/errors kinds at this
// boundary, so callers never inspect status codes or wire messages.
package transport

import (
	"context"

	"github.com/jrsteele09/rental-auth-client/users"
)

// VerificationType names the flow a one-time code belongs to.
type VerificationType string

const (
	Registration  VerificationType = "registration"
	Login         VerificationType = "login"
	PasswordReset VerificationType = "password_reset"
)

func (t VerificationType) Valid() bool {
	switch t {
	case Registration, Login, PasswordReset:
		return true
	}
	return false
}

type LoginResponse struct {
	Token        string      `json:"token,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         *users.User `json:"user,omitempty"`
	Role         string      `json:"role,omitempty"`
	Message      string      `json:"message,omitempty"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        string `json:"role"`
}

// OTPResponse is returned by code request, resend, registration and reset
// calls. A false Success is an answer, not a transport error.
type OTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type VerifyResponse struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message,omitempty"`
	Token        string      `json:"token,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         *users.User `json:"user,omitempty"`
}

// HasAuth reports whether the verification also signed the user in.
func (r *VerifyResponse) HasAuth() bool {
	return r != nil && (r.Token != "" || r.User != nil)
}

type Transport interface {
	Login(ctx context.Context, email, password string) (*LoginResponse, error)
	Register(ctx context.Context, registration RegisterRequest) (*OTPResponse, error)
	RequestOTP(ctx context.Context, email string, verificationType VerificationType) (*OTPResponse, error)
	VerifyOTP(ctx context.Context, email, code string, verificationType VerificationType) (*VerifyResponse, error)
	ResendOTP(ctx context.Context, email string, verificationType VerificationType) (*OTPResponse, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) (*OTPResponse, error)
	// Logout invalidates token server side. Failures must not block a local logout.
	Logout(ctx context.Context, token string) error
}
