package audio

import (
	"fmt"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

const (
	OpusSampleRate    = 48000
	OpusChannels      = 1
	OpusFrameDuration = 20
	OpusFrameSamples  = OpusSampleRate * OpusFrameDuration / 1000
	maxPacketSize     = 1275
)

var packetPool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxPacketSize)
		return &buf
	},
}

// OpusEncoder turns 20 ms mono frames at 48 kHz into opus packets.
type OpusEncoder struct {
	enc *opus.Encoder
}

func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := opus.NewEncoder(OpusSampleRate, OpusChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes one frame. Short frames are zero-padded to a full frame.
func (e *OpusEncoder) Encode(frame []int16) ([]byte, error) {
	if len(frame) != OpusFrameSamples {
		padded := make([]int16, OpusFrameSamples)
		copy(padded, frame)
		frame = padded
	}

	bufPtr := packetPool.Get().(*[]byte)
	defer packetPool.Put(bufPtr)

	n, err := e.enc.Encode(frame, *bufPtr)
	if err != nil {
		return nil, err
	}
	packet := make([]byte, n)
	copy(packet, (*bufPtr)[:n])
	return packet, nil
}

type OpusDecoder struct {
	dec *opus.Decoder
}

func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := opus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode returns the 48 kHz mono PCM carried by one packet.
func (d *OpusDecoder) Decode(packet []byte) ([]int16, error) {
	pcm := make([]int16, OpusSampleRate*120/1000*OpusChannels)
	n, err := d.dec.Decode(packet, pcm)
	if err != nil {
		return nil, err
	}
	return pcm[:n*OpusChannels], nil
}
