package vad

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame returns 20ms of 8kHz PCM at a constant amplitude
func frame(amplitude int16) []byte {
	pcm := make([]byte, 320)
	for i := 0; i < 160; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func feed(d *Detector, pcm []byte, n int) []Event {
	var out []Event
	for i := 0; i < n; i++ {
		out = append(out, d.Process(pcm)...)
	}
	return out
}

func TestCalculateRMS(t *testing.T) {
	assert.Equal(t, 0.0, CalculateRMS(nil))
	assert.InDelta(t, 1000, CalculateRMS(frame(1000)), 0.001)
	assert.Equal(t, 0.0, CalculateRMS(frame(0)))
}

func TestDetector_StartAndEnd(t *testing.T) {
	d := NewDetector(Options{Threshold: 500, MinSpeech: 100 * time.Millisecond, MinSilence: 400 * time.Millisecond})

	// four voiced frames are 80ms, below the minimum
	assert.Empty(t, feed(d, frame(2000), 4))
	assert.False(t, d.Speaking())

	events := d.Process(frame(2000))
	require.Len(t, events, 1)
	assert.Equal(t, SpeechStarted, events[0].Type)
	assert.Equal(t, 100*time.Millisecond, events[0].Offset)
	assert.True(t, d.Speaking())

	assert.Empty(t, feed(d, frame(10), 19))
	events = d.Process(frame(10))
	require.Len(t, events, 1)
	assert.Equal(t, SpeechEnded, events[0].Type)
	assert.False(t, d.Speaking())
}

func TestDetector_ShortNoiseIgnored(t *testing.T) {
	d := NewDetector(Options{Threshold: 500})
	for i := 0; i < 10; i++ {
		assert.Empty(t, feed(d, frame(3000), 2))
		assert.Empty(t, feed(d, frame(0), 1))
	}
	assert.False(t, d.Speaking())
}

func TestDetector_PauseShorterThanSilenceKeepsSpeech(t *testing.T) {
	d := NewDetector(Options{Threshold: 500})
	require.Len(t, feed(d, frame(2000), 5), 1)
	assert.Empty(t, feed(d, frame(0), 10))
	assert.Empty(t, feed(d, frame(2000), 5))
	assert.True(t, d.Speaking())
}

func TestDetector_Reset(t *testing.T) {
	d := NewDetector(Options{})
	feed(d, frame(2000), 10)
	require.True(t, d.Speaking())
	d.Reset()
	assert.False(t, d.Speaking())
	assert.Empty(t, d.Process(nil))
	assert.Equal(t, "speech_started", SpeechStarted.String())
}
