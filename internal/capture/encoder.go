package capture

import (
	"github.com/eleven-am/livescribe/internal/audio"
)

type chunkEncoder interface {
	Encode(frames [][]byte) ([]byte, error)
}

func newChunkEncoder(cfg Config) (chunkEncoder, error) {
	switch cfg.Encoding {
	case EncodingOpus:
		enc, err := audio.NewOpusEncoder()
		if err != nil {
			return nil, err
		}
		return &opusChunkEncoder{enc: enc}, nil
	case EncodingWAV:
		return &wavChunkEncoder{sampleRate: cfg.SampleRate, channels: cfg.Channels}, nil
	default:
		return pcmChunkEncoder{}, nil
	}
}

type pcmChunkEncoder struct{}

func (pcmChunkEncoder) Encode(frames [][]byte) ([]byte, error) {
	size := 0
	for _, f := range frames {
		size += len(f)
	}
	out := make([]byte, 0, size)
	for _, f := range frames {
		out = append(out, f...)
	}
	return out, nil
}

type wavChunkEncoder struct {
	sampleRate int
	channels   int
}

func (w *wavChunkEncoder) Encode(frames [][]byte) ([]byte, error) {
	pcm, _ := pcmChunkEncoder{}.Encode(frames)
	return audio.EncodeWAV(audio.PCMBytesToInt16(pcm), w.sampleRate, w.channels)
}

type opusChunkEncoder struct {
	enc *audio.OpusEncoder
}

func (o *opusChunkEncoder) Encode(frames [][]byte) ([]byte, error) {
	packets := make([][]byte, 0, len(frames))
	for _, f := range frames {
		packet, err := o.enc.Encode(audio.PCMBytesToInt16(f))
		if err != nil {
			return nil, err
		}
		packets = append(packets, packet)
	}
	return audio.FramePackets(packets), nil
}
