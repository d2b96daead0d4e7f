package recognizer

import (
	"bytes"

	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/youpy/go-wav"
)

// EncodeWAV wraps mono 16-bit PCM in a RIFF container
func EncodeWAV(pcm []byte, sampleRate int) ([]byte, error) {
	pcmSamples := media.Samples(pcm)
	samples := make([]wav.Sample, len(pcmSamples))
	for i, v := range pcmSamples {
		samples[i].Values[0] = int(v)
	}

	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(len(samples)), 1, uint32(sampleRate), 16)
	if err := w.WriteSamples(samples); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
