package bootstrap

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	RelayAPIToken string

	STTAddress     string
	SidecarToken   string
	SidecarTLS     bool
	STTLanguage    string
	STTModel       string
	STTMaxAttempts int

	DatabaseDSN      string
	DatabaseMaxConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		RelayAPIToken: getEnv("RELAY_API_TOKEN", ""),

		STTAddress:     getEnv("STT_ADDRESS", "localhost:50052"),
		SidecarToken:   getEnv("SIDECAR_TOKEN", ""),
		SidecarTLS:     getEnvBool("SIDECAR_TLS", false),
		STTLanguage:    getEnv("STT_LANGUAGE", ""),
		STTModel:       getEnv("STT_MODEL", ""),
		STTMaxAttempts: getEnvInt("STT_MAX_ATTEMPTS", 5),

		DatabaseDSN:      getEnv("DATABASE_DSN", ""),
		DatabaseMaxConns: getEnvInt("DATABASE_MAX_CONNS", 10),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return defaultValue
}
