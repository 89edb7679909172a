// Package audio provides audio acquisition for the gain control loop: an
// FFmpeg-based capture source and PCM sample conversion.
package audio

import (
	"encoding/binary"
	"math"
)

// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
const MaxSampleValue = 32768.0

// DecodeS16LE converts signed 16-bit little-endian mono PCM into normalized
// float64 samples in [-1, 1). A trailing odd byte is dropped.
func DecodeS16LE(pcm []byte) []float64 {
	samples := make([]float64, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		samples = append(samples, float64(s)/MaxSampleValue)
	}
	return samples
}

// EncodeS16LE converts normalized float64 samples back into signed 16-bit
// little-endian mono PCM, clipping values outside [-1, 1).
func EncodeS16LE(samples []float64) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(s * MaxSampleValue)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}
