package config

type SessionConfig interface {
	GetRememberAfterVerification() bool
	GetSessionFileName() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetRememberAfterVerification decides whether a session created by a code
// verification is written to the durable store.
func (Session) GetRememberAfterVerification() bool {
	return GetEnv("REMEMBER_AFTER_VERIFICATION", "true") == "true"
}

func (Session) GetSessionFileName() string {
	return GetEnv("SESSION_FILE", "session.json")
}
