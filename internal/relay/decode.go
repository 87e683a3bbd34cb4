package relay

import (
	"fmt"

	"github.com/eleven-am/livescribe/internal/audio"
	"github.com/eleven-am/livescribe/internal/capture"
)

// SidecarSampleRate is the rate of every PCM16 stream forwarded to the sidecar.
const SidecarSampleRate = 16000

// chunkDecoder turns one client chunk into 16 kHz mono samples.
type chunkDecoder func(chunk []byte) ([]int16, error)

func newChunkDecoder(enc capture.Encoding, pcmRate int) (chunkDecoder, error) {
	switch enc {
	case capture.EncodingOpus:
		dec, err := audio.NewOpusDecoder()
		if err != nil {
			return nil, err
		}
		return func(chunk []byte) ([]int16, error) {
			packets, err := audio.SplitPackets(chunk)
			if err != nil {
				return nil, err
			}
			var pcm []int16
			for _, p := range packets {
				frame, err := dec.Decode(p)
				if err != nil {
					return nil, fmt.Errorf("decode opus packet: %w", err)
				}
				pcm = append(pcm, frame...)
			}
			return audio.ResampleInt16(pcm, audio.OpusSampleRate, SidecarSampleRate), nil
		}, nil

	case capture.EncodingWAV:
		return func(chunk []byte) ([]int16, error) {
			samples, rate, channels, err := audio.DecodeWAV(chunk)
			if err != nil {
				return nil, err
			}
			mono := audio.DownmixInt16(samples, channels)
			return audio.ResampleInt16(mono, rate, SidecarSampleRate), nil
		}, nil

	case capture.EncodingPCM16:
		if pcmRate <= 0 {
			pcmRate = SidecarSampleRate
		}
		return func(chunk []byte) ([]int16, error) {
			return audio.ResampleInt16(audio.PCMBytesToInt16(chunk), pcmRate, SidecarSampleRate), nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported encoding %q", enc)
}
