package transcription

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/anypb"
)

// fakeSidecar answers every audio message with a transcript built by reply.
type fakeSidecar struct {
	mu        sync.Mutex
	configs   []map[string]any
	audio     [][]byte
	tokens    []string
	ends      int
	streams   int
	reply     func(audio []byte) []ServerMessage
	onEnd     []ServerMessage
	skipReady bool
	failOpen  bool
}

func (f *fakeSidecar) transcribe(_ any, stream grpc.ServerStream) error {
	f.mu.Lock()
	f.streams++
	failOpen := f.failOpen
	f.mu.Unlock()
	if failOpen {
		return errors.New("sidecar unavailable")
	}

	if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
		f.mu.Lock()
		f.tokens = append(f.tokens, strings.Join(md.Get("authorization"), ""))
		f.mu.Unlock()
	}

	for {
		var msg anypb.Any
		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		cm, err := DecodeClientMessage(&msg)
		if err != nil {
			return err
		}

		var out []ServerMessage
		f.mu.Lock()
		switch {
		case cm.Config != nil:
			f.configs = append(f.configs, cm.Config)
			if !f.skipReady {
				out = []ServerMessage{{Type: MessageReady}}
			}
		case cm.End:
			f.ends++
			out = f.onEnd
		default:
			f.audio = append(f.audio, cm.Audio)
			if f.reply != nil {
				out = f.reply(cm.Audio)
			}
		}
		f.mu.Unlock()

		for _, m := range out {
			reply, err := EncodeServerMessage(m)
			if err != nil {
				return err
			}
			if err := stream.SendMsg(reply); err != nil {
				return err
			}
		}
		if cm.End {
			return nil
		}
	}
}

func (f *fakeSidecar) snapshot() (configs []map[string]any, audio [][]byte, ends, streams int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.configs...), append([][]byte(nil), f.audio...), f.ends, f.streams
}

func startSidecar(t *testing.T, f *fakeSidecar) (Config, *grpc.Server) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    TranscribeName,
			Handler:       f.transcribe,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, f)

	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cfg := Config{
		Address: "passthrough:///bufnet",
		Token:   "sidecar-token",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	}
	return cfg, srv
}
