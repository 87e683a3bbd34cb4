package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	blob, err := EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	if !bytes.HasPrefix(blob, []byte("RIFF")) {
		t.Error("expected RIFF header")
	}
	if !bytes.Contains(blob[:16], []byte("WAVE")) {
		t.Error("expected WAVE format tag")
	}

	got, rate, channels, err := DecodeWAV(blob)
	if err != nil {
		t.Fatalf("DecodeWAV error: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("expected 16000/1, got %d/%d", rate, channels)
	}
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	_, _, _, err := DecodeWAV([]byte("not a wav file at all"))
	if !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("expected ErrInvalidWAV, got %v", err)
	}
}
