package media

import (
	"encoding/binary"
)

const (
	// SampleRate of telephone audio exchanged with the room
	SampleRate = 8000
	// BytesPerSample of 16-bit linear PCM
	BytesPerSample = 2

	muLawBias = 0x84
	muLawClip = 32635
)

var muLawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^byte(i)
		exponent := (u >> 4) & 0x07
		mantissa := int32(u & 0x0F)
		sample := ((mantissa << 3) + muLawBias) << exponent
		sample -= muLawBias
		if u&0x80 != 0 {
			sample = -sample
		}
		muLawDecodeTable[i] = int16(sample)
	}
}

// LinearToMuLaw encodes one 16-bit sample as G.711 μ-law
func LinearToMuLaw(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// MuLawToLinear decodes one G.711 μ-law byte
func MuLawToLinear(u byte) int16 {
	return muLawDecodeTable[u]
}

// DecodeMuLaw turns μ-law bytes into little-endian 16-bit PCM
func DecodeMuLaw(data []byte) []byte {
	pcm := make([]byte, len(data)*BytesPerSample)
	for i, u := range data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(muLawDecodeTable[u]))
	}
	return pcm
}

// EncodeMuLaw turns little-endian 16-bit PCM into μ-law bytes; a trailing odd byte is dropped
func EncodeMuLaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = LinearToMuLaw(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// Samples decodes little-endian 16-bit PCM
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// PCMBytes encodes samples as little-endian 16-bit PCM
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Resample converts 16-bit mono PCM between sample rates using linear interpolation
func Resample(pcm []byte, fromRate, toRate int) []byte {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(pcm) < BytesPerSample {
		return pcm
	}

	in := Samples(pcm)
	outLen := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	out := make([]int16, outLen)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
	}
	return PCMBytes(out)
}

// DurationBytes is the PCM size of ms milliseconds at SampleRate
func DurationBytes(ms int) int {
	return SampleRate * BytesPerSample * ms / 1000
}
