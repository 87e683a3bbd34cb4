package bootstrap

import (
	"log/slog"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_ADDR", "LOG_LEVEL", "RELAY_API_TOKEN", "SIDECAR_TLS", "REDIS_DB", "STT_MAX_ATTEMPTS", "DATABASE_MAX_CONNS"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.ServerAddr != ":8080" || cfg.LogLevel != "info" || cfg.RelayAPIToken != "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SidecarTLS || cfg.RedisDB != 0 || cfg.STTMaxAttempts != 5 || cfg.DatabaseMaxConns != 10 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("SIDECAR_TLS", "true")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RELAY_API_TOKEN", "secret")
	t.Setenv("STT_LANGUAGE", "de")

	cfg := LoadConfig()
	if cfg.ServerAddr != ":9090" || !cfg.SidecarTLS || cfg.RedisDB != 2 || cfg.RelayAPIToken != "secret" || cfg.STTLanguage != "de" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("LS_INT", "abc")
	if got := getEnvInt("LS_INT", 7); got != 7 {
		t.Errorf("invalid int should fall back, got %d", got)
	}

	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"1", false, true},
		{"no", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("LS_BOOL", tt.value)
		if got := getEnvBool("LS_BOOL", tt.def); got != tt.want {
			t.Errorf("getEnvBool(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
