package transcription

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
)

// Ping dials the sidecar and waits until the channel is ready or ctx ends.
func Ping(ctx context.Context, cfg Config) error {
	if cfg.Address == "" {
		return fmt.Errorf("sidecar address not configured")
	}

	conn, err := grpc.NewClient(cfg.Address, dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("dial sidecar: %w", err)
	}
	defer conn.Close()

	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("sidecar connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("sidecar not ready: %s", state)
		}
	}
}
