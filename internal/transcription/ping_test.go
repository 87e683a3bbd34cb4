package transcription

import (
	"context"
	"testing"
	"time"
)

func TestPing(t *testing.T) {
	cfg, _ := startSidecar(t, &fakeSidecar{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Ping(ctx, cfg); err != nil {
		t.Errorf("expected ready sidecar, got %v", err)
	}
}

func TestPing_Unreachable(t *testing.T) {
	cfg, srv := startSidecar(t, &fakeSidecar{})
	srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := Ping(ctx, cfg); err == nil {
		t.Error("expected ping to fail")
	}
}

func TestPing_NotConfigured(t *testing.T) {
	if err := Ping(context.Background(), Config{}); err == nil {
		t.Error("expected error without address")
	}
}
