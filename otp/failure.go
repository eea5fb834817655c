package otp

import "strings"

// Failure classifies a rejected verification by the server's message.
type Failure int

const (
	FailureNone Failure = iota
	FailureInvalid
	FailureExpired
	FailureNotFound
	FailureAlreadyVerified
)

var failureMessages = [...]string{
	FailureNone:            "",
	FailureInvalid:         "The code you entered is incorrect. Please check it and try again.",
	FailureExpired:         "This code has expired. Please request a new one.",
	FailureNotFound:        "We couldn't find a code for this email. Please request a new one.",
	FailureAlreadyVerified: "This account is already verified. Please sign in.",
}

func (f Failure) Message() string {
	if f < 0 || int(f) >= len(failureMessages) {
		return failureMessages[FailureInvalid]
	}
	return failureMessages[f]
}

func (f Failure) String() string {
	switch f {
	case FailureInvalid:
		return "invalid"
	case FailureExpired:
		return "expired"
	case FailureNotFound:
		return "not_found"
	case FailureAlreadyVerified:
		return "already_verified"
	}
	return "none"
}

// ClassifyFailure maps a server message onto a Failure. Anything unrecognised
// is treated as an invalid code.
func ClassifyFailure(message string) Failure {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "already verified"), strings.Contains(m, "already been verified"):
		return FailureAlreadyVerified
	case strings.Contains(m, "expired"):
		return FailureExpired
	case strings.Contains(m, "not found"), strings.Contains(m, "no otp"), strings.Contains(m, "no code"):
		return FailureNotFound
	}
	return FailureInvalid
}
