package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
)

const transcriptionTimeout = 60 * time.Second

var ErrNoTranscript = errors.New("no transcript received")

type BatchRequest struct {
	Format     string
	SampleRate int
	AudioData  []byte
	Language   string
	Model      string
}

// BatchTranscribe sends one encoded blob over a fresh stream and returns the
// last final transcript the sidecar produced for it.
func BatchTranscribe(ctx context.Context, cfg Config, req BatchRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcriptionTimeout)
	defer cancel()

	conn, err := grpc.NewClient(cfg.Address, dialOptions(cfg)...)
	if err != nil {
		return "", fmt.Errorf("dial sidecar: %w", err)
	}
	defer conn.Close()

	stream, err := conn.NewStream(withToken(ctx, cfg.Token), transcribeStream, TranscribeRoute)
	if err != nil {
		return "", fmt.Errorf("open stream: %w", err)
	}

	cfgMsg, err := configMessage(SessionOptions{
		Encoding:   req.Format,
		SampleRate: req.SampleRate,
		Language:   req.Language,
		Model:      req.Model,
		Partials:   false,
	})
	if err != nil {
		return "", err
	}
	if err := stream.SendMsg(cfgMsg); err != nil {
		return "", fmt.Errorf("send config: %w", err)
	}

	audio, err := audioMessage(req.AudioData)
	if err != nil {
		return "", err
	}
	if err := stream.SendMsg(audio); err != nil {
		return "", fmt.Errorf("send audio: %w", err)
	}

	end, err := endMessage()
	if err != nil {
		return "", err
	}
	if err := stream.SendMsg(end); err != nil {
		return "", fmt.Errorf("send end: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return "", fmt.Errorf("close send: %w", err)
	}

	var (
		text string
		got  bool
	)
	for {
		var msg anypb.Any
		err := stream.RecvMsg(&msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", fmt.Errorf("transcription timeout: %w", ctx.Err())
			}
			return "", fmt.Errorf("recv: %w", err)
		}

		reply, err := DecodeServerMessage(&msg)
		if err != nil {
			continue
		}
		switch reply.Type {
		case MessageTranscript:
			if !reply.IsPartial {
				text = reply.Text
				got = true
			}
		case MessageError:
			return "", fmt.Errorf("%w: %s", ErrSidecar, reply.Text)
		}
	}

	if !got {
		return "", ErrNoTranscript
	}
	return text, nil
}
