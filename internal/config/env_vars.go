package config

import (
	"os"
	"strconv"
	"time"
)

const (
	appNameVar        = "APP_NAME"
	apiBaseURLVar     = "API_BASE_URL"
	folderEnvVar      = "FOLDER"
	logLevelVar       = "LOG_LEVEL"
	redisAddrVar      = "REDIS_ADDR"
	redisPrefixVar    = "REDIS_PREFIX"
	requestTimeoutVar = "REQUEST_TIMEOUT"
)

type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetDataFolder() string
	GetEnv() string
	GetLogLevel() string
	GetRedisAddr() string
	GetRedisPrefix() string
	GetRequestTimeout() time.Duration
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Rentals")
}

// GetAPIBaseURL returns the backend base URL (e.g. "https://api.example.com")
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://localhost:8080")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetRedisAddr returns the Redis address for the durable store. Empty means
// the file store in the data folder is used instead.
func (EnvVars) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "")
}

func (EnvVars) GetRedisPrefix() string {
	return GetEnv(redisPrefixVar, "rentals")
}

func (EnvVars) GetRequestTimeout() time.Duration {
	return GetDuration(requestTimeoutVar, 15*time.Second)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration accepts Go duration strings ("90s") or a bare number of seconds.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
