package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

var ErrTruncatedPacket = errors.New("truncated opus packet")

// FramePackets concatenates packets, each prefixed by its 2-byte big-endian length.
func FramePackets(packets [][]byte) []byte {
	size := 0
	for _, p := range packets {
		size += 2 + len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range packets {
		if len(p) > math.MaxUint16 {
			p = p[:math.MaxUint16]
		}
		out = binary.BigEndian.AppendUint16(out, uint16(len(p)))
		out = append(out, p...)
	}
	return out
}

// SplitPackets reverses FramePackets.
func SplitPackets(chunk []byte) ([][]byte, error) {
	var packets [][]byte
	for len(chunk) > 0 {
		if len(chunk) < 2 {
			return nil, ErrTruncatedPacket
		}
		n := int(binary.BigEndian.Uint16(chunk))
		chunk = chunk[2:]
		if len(chunk) < n {
			return nil, ErrTruncatedPacket
		}
		packets = append(packets, chunk[:n])
		chunk = chunk[n:]
	}
	return packets, nil
}
