package audio

import (
	"math"
	"testing"
)

func TestDecodeS16LEKnownValues(t *testing.T) {
	// 0, 16384 (0.5), -32768 (-1.0)
	pcm := []byte{0x00, 0x00, 0x00, 0x40, 0x00, 0x80}
	samples := DecodeS16LE(pcm)

	if len(samples) != 3 {
		t.Fatalf("len = %d, want 3", len(samples))
	}
	want := []float64{0, 0.5, -1}
	for i, w := range want {
		if math.Abs(samples[i]-w) > 1e-12 {
			t.Errorf("sample %d = %v, want %v", i, samples[i], w)
		}
	}
}

func TestDecodeS16LEDropsOddByte(t *testing.T) {
	if got := DecodeS16LE([]byte{0x00, 0x40, 0xFF}); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
	if got := DecodeS16LE([]byte{0x7F}); len(got) != 0 {
		t.Errorf("len = %d for single byte, want 0", len(got))
	}
}

func TestEncodeS16LEClips(t *testing.T) {
	pcm := EncodeS16LE([]float64{2.0, -2.0})
	got := DecodeS16LE(pcm)
	if got[0] < 0.999 {
		t.Errorf("positive overdrive decoded to %v, want near 1", got[0])
	}
	if got[1] != -1 {
		t.Errorf("negative overdrive decoded to %v, want -1", got[1])
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []float64{0, 0.25, -0.25, 0.5, -0.9999}
	out := DecodeS16LE(EncodeS16LE(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if math.Abs(out[i]-in[i]) > 1.0/MaxSampleValue {
			t.Errorf("sample %d: %v -> %v", i, in[i], out[i])
		}
	}
}
