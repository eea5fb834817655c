package config

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	OTPConfig
	SessionConfig
}

type mainConfig struct {
	EnvVars
	OTP
	Session
}

func New() Config {
	return mainConfig{}
}

// Load reads an optional .env file into the process environment and returns
// the env-backed configuration.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg("No .env file found, relying on environment variables")
	}
	return New()
}
