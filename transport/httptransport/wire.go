package httptransport

import "github.com/jrsteele09/rental-auth-client/users"

// Endpoint paths, relative to the API base URL.
const (
	PathLogin      = "/auth/login"
	PathRegister   = "/auth/register"
	PathRequestOTP = "/auth/otp/request"
	PathVerifyOTP  = "/auth/otp/verify"
	PathResendOTP  = "/auth/otp/resend"
	PathReset      = "/auth/password/reset"
	PathLogout     = "/auth/logout"
)

const (
	contentTypeJSON = "application/json"
	headerRequestID = "X-Request-ID"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
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
	FullName    string `json:"fullName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Role        string `json:"role,omitempty"`
}

type OTPRequest struct {
	Email string `json:"email"`
	Type  string `json:"type"`
}

type VerifyRequest struct {
	Email   string `json:"email"`
	OTPCode string `json:"otpCode"`
	Type    string `json:"type"`
}

type ResetRequest struct {
	Email       string `json:"email"`
	OTPCode     string `json:"otpCode"`
	NewPassword string `json:"newPassword"`
}

// StatusResponse is the {success, message} body of the code endpoints. The
// verify endpoint may add a session.
type StatusResponse struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message,omitempty"`
	Token        string      `json:"token,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         *users.User `json:"user,omitempty"`
}

// ErrorResponse is the body of non-2xx answers.
type ErrorResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Field   string `json:"field,omitempty"`
	Success *bool  `json:"success,omitempty"`
}

func (e ErrorResponse) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
