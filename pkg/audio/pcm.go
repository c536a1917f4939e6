package audio

import "encoding/binary"

// EncodePCM16 converts normalized samples to 16-bit signed little-endian PCM.
//
// Each sample is clamped to [-1, 1] and scaled asymmetrically: non-negative
// values by 32767 and negative values by 32768. This is standard PCM16
// practice — the int16 range is asymmetric, and a symmetric ×32768 scale
// would overflow at +1.0. The asymmetry must be preserved exactly for wire
// compatibility with the remote service.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s >= 0 {
			v = int16(s * 32767)
		} else {
			v = int16(s * 32768)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM into a normalized
// [Frame] at the given sample rate. Each sample is divided by 32768, mapping
// the int16 range into [-1, 1). A trailing odd byte is ignored.
func DecodePCM16(pcm []byte, sampleRate int) Frame {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return Frame{Samples: samples, SampleRate: sampleRate}
}
