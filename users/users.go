package users

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// User is the identity record the client keeps alongside the session token.
type User struct {
	ID            string `json:"id,omitempty"`            // Unique identifier for the user
	Email         string `json:"email,omitempty"`         // User's email address
	FullName      string `json:"fullName,omitempty"`      // Display name
	Role          string `json:"role,omitempty"`          // Role as sent by the server, e.g. "LANDLORD"
	EmailVerified bool   `json:"emailVerified,omitempty"` // Email ownership confirmed by code
	PhoneVerified bool   `json:"phoneVerified,omitempty"` // Phone ownership confirmed by code
	PhoneNumber   string `json:"phoneNumber,omitempty"`   // Contact number, editable from the profile
}

// RoleKind parses the server role string.
func (u *User) RoleKind() Role {
	if u == nil {
		return RoleUnknown
	}
	return ParseRole(u.Role)
}

// HasRole compares role against the user's role, ignoring case.
func (u *User) HasRole(role string) bool {
	if u == nil || u.Role == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(u.Role), strings.TrimSpace(role))
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
