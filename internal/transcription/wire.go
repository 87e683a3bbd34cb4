package transcription

import (
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "stt.v1.Transcription"
	TranscribeName  = "Transcribe"
	TranscribeRoute = "/" + ServiceName + "/" + TranscribeName
)

const (
	MessageReady      = "ready"
	MessageTranscript = "transcript"
	MessageError      = "error"
)

var (
	ErrSidecar           = errors.New("sidecar error")
	ErrStreamClosed      = errors.New("sidecar stream closed")
	ErrStreamNotReady    = errors.New("stream not ready")
	ErrUnexpectedMessage = errors.New("unexpected sidecar message")
)

var transcribeStream = &grpc.StreamDesc{
	StreamName:    TranscribeName,
	ServerStreams: true,
	ClientStreams: true,
}

// ServerMessage is the decoded form of a sidecar reply.
type ServerMessage struct {
	Type      string
	Text      string
	IsPartial bool
}

func configMessage(opts SessionOptions) (*anypb.Any, error) {
	fields := map[string]any{
		"encoding": opts.Encoding,
		"partials": opts.Partials,
	}
	if opts.SampleRate > 0 {
		fields["sample_rate"] = opts.SampleRate
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if opts.Model != "" {
		fields["model"] = opts.Model
	}

	cfg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build config: %w", err)
	}
	return anypb.New(cfg)
}

func audioMessage(data []byte) (*anypb.Any, error) {
	return anypb.New(wrapperspb.Bytes(data))
}

func endMessage() (*anypb.Any, error) {
	return anypb.New(&emptypb.Empty{})
}

// EncodeServerMessage builds the reply a sidecar sends for msg.
func EncodeServerMessage(msg ServerMessage) (*anypb.Any, error) {
	s, err := structpb.NewStruct(map[string]any{
		"type":       msg.Type,
		"text":       msg.Text,
		"is_partial": msg.IsPartial,
	})
	if err != nil {
		return nil, err
	}
	return anypb.New(s)
}

func DecodeServerMessage(msg *anypb.Any) (ServerMessage, error) {
	var s structpb.Struct
	if err := msg.UnmarshalTo(&s); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.GetTypeUrl())
	}

	fields := s.GetFields()
	out := ServerMessage{
		Type:      fields["type"].GetStringValue(),
		Text:      fields["text"].GetStringValue(),
		IsPartial: fields["is_partial"].GetBoolValue(),
	}
	switch out.Type {
	case MessageReady, MessageTranscript, MessageError:
		return out, nil
	default:
		return ServerMessage{}, fmt.Errorf("%w: type %q", ErrUnexpectedMessage, out.Type)
	}
}

// ClientMessage is the decoded form of what the relay sends on the stream.
// Exactly one of Config, Audio or End is set.
type ClientMessage struct {
	Config map[string]any
	Audio  []byte
	End    bool
}

func DecodeClientMessage(msg *anypb.Any) (ClientMessage, error) {
	switch {
	case msg.MessageIs(&structpb.Struct{}):
		var s structpb.Struct
		if err := msg.UnmarshalTo(&s); err != nil {
			return ClientMessage{}, err
		}
		return ClientMessage{Config: s.AsMap()}, nil
	case msg.MessageIs(&wrapperspb.BytesValue{}):
		var b wrapperspb.BytesValue
		if err := msg.UnmarshalTo(&b); err != nil {
			return ClientMessage{}, err
		}
		return ClientMessage{Audio: b.GetValue()}, nil
	case msg.MessageIs(&emptypb.Empty{}):
		return ClientMessage{End: true}, nil
	default:
		return ClientMessage{}, fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.GetTypeUrl())
	}
}
