package media

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuLaw_KnownValues(t *testing.T) {
	assert.Equal(t, int16(-32124), MuLawToLinear(0x00))
	assert.Equal(t, int16(32124), MuLawToLinear(0x80))
	assert.Equal(t, int16(0), MuLawToLinear(0xFF))
	assert.Equal(t, byte(0xFF), LinearToMuLaw(0))
	assert.Equal(t, byte(0x80), LinearToMuLaw(math.MaxInt16))
	assert.Equal(t, byte(0x00), LinearToMuLaw(math.MinInt16))
}

func TestMuLaw_RoundTripIsClose(t *testing.T) {
	for _, s := range []int16{-30000, -12000, -1000, -100, 0, 50, 900, 8000, 25000} {
		got := MuLawToLinear(LinearToMuLaw(s))
		tolerance := math.Max(16, math.Abs(float64(s))*0.07)
		assert.InDelta(t, float64(s), float64(got), tolerance, "sample %d", s)
	}
}

func TestEncodeDecodeBuffers(t *testing.T) {
	pcm := PCMBytes([]int16{0, 1000, -1000, 20000})
	ulaw := EncodeMuLaw(pcm)
	require.Len(t, ulaw, 4)

	back := Samples(DecodeMuLaw(ulaw))
	require.Len(t, back, 4)
	assert.Equal(t, int16(0), back[0])
	assert.InDelta(t, 1000, float64(back[1]), 70)
	assert.InDelta(t, -1000, float64(back[2]), 70)

	assert.Len(t, EncodeMuLaw([]byte{1, 2, 3}), 1)
}

func TestResample(t *testing.T) {
	in := make([]int16, 240)
	for i := range in {
		in[i] = int16(i * 10)
	}
	out := Samples(Resample(PCMBytes(in), 24000, 8000))
	require.Len(t, out, 80)
	assert.Equal(t, int16(0), out[0])
	assert.Equal(t, int16(30), out[1])

	up := Samples(Resample(PCMBytes([]int16{0, 100}), 8000, 16000))
	require.Len(t, up, 4)
	assert.Equal(t, int16(50), up[1])

	same := PCMBytes([]int16{1, 2})
	assert.Equal(t, same, Resample(same, 8000, 8000))
}

func TestDurationBytes(t *testing.T) {
	assert.Equal(t, 320, DurationBytes(20))
	assert.Equal(t, 16000, DurationBytes(1000))
}
