package vad

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// pcm16 renders sine spans (duration ms, amplitude) as 16-bit mono PCM
func pcm16(sampleRate int, spans ...[2]float64) []byte {
	var out []byte
	i := 0
	for _, s := range spans {
		n := int(float64(sampleRate) * s[0] / 1000)
		for j := 0; j < n; j++ {
			v := int16(s[1] * 32767 * math.Sin(2*math.Pi*250*float64(i)/float64(sampleRate)))
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
			i++
		}
	}
	return out
}

func TestSamples(t *testing.T) {
	t.Run("should normalize 16-bit samples", func(t *testing.T) {
		// Arrange
		pcm := []byte{0x00, 0x80, 0x00, 0x00, 0x00, 0x40}

		// Act
		samples, err := Samples(pcm, 16, 1)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []float64{-1, 0, 0.5}, samples)
	})

	t.Run("should center 8-bit samples on 128", func(t *testing.T) {
		samples, err := Samples([]byte{0, 128, 192}, 8, 1)

		require.NoError(t, err)
		assert.Equal(t, []float64{-1, 0, 0.5}, samples)
	})

	t.Run("should average interleaved channels", func(t *testing.T) {
		// Arrange - left 0.5, right 0
		pcm := []byte{0x00, 0x40, 0x00, 0x00}

		// Act
		samples, err := Samples(pcm, 16, 2)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []float64{0.25}, samples)
	})

	t.Run("should reject unsupported bit depths", func(t *testing.T) {
		_, err := Samples(make([]byte, 12), 24, 1)

		assert.ErrorIs(t, err, ErrUnsupportedBitDepth)
	})
}

func TestFrameRMS(t *testing.T) {
	t.Run("should ignore a trailing partial frame", func(t *testing.T) {
		// Arrange - 8kHz gives 160 samples per frame
		samples := make([]float64, 160*2+50)
		for i := range samples {
			samples[i] = 0.5
		}

		// Act
		rms := FrameRMS(samples, 8000)

		// Assert
		require.Len(t, rms, 2)
		assert.InDelta(t, 0.5, rms[0], 1e-12)
		assert.InDelta(t, 0.5, rms[1], 1e-12)
	})

	t.Run("should return no frames for audio shorter than one frame", func(t *testing.T) {
		assert.Empty(t, FrameRMS(make([]float64, 10), 16000))
	})
}

func TestPercentile(t *testing.T) {
	values := []float64{9, 1, 8, 2, 7, 3, 6, 4, 5, 10}

	// floor(0.1 * 9) = 0, floor(0.5 * 9) = 4
	assert.Equal(t, 1.0, Percentile(values, 10))
	assert.Equal(t, 5.0, Percentile(values, 50))
	assert.Equal(t, 10.0, Percentile(values, 100))
	assert.Equal(t, 0.0, Percentile(nil, 10))
	assert.Equal(t, 9.0, values[0], "input must not be reordered")
}

func TestNoiseFloorThreshold(t *testing.T) {
	t.Run("should scale the tenth percentile", func(t *testing.T) {
		rms := []float64{0.01, 0.2, 0.3, 0.4, 0.5}

		assert.InDelta(t, 0.03, NoiseFloorThreshold(rms), 1e-12)
	})

	t.Run("should clamp to half the static default", func(t *testing.T) {
		rms := []float64{0, 0, 0.0001, 0.5}

		assert.Equal(t, DefaultSilenceThreshold*MinAdaptiveFraction, NoiseFloorThreshold(rms))
	})
}

func TestAdaptiveThreshold(t *testing.T) {
	t.Run("should use the static threshold when nothing is quiet", func(t *testing.T) {
		rms := []float64{0.3, 0.3, 0.3, 0.3}

		assert.Equal(t, 0.01, AdaptiveThreshold(rms, 0.01))
	})

	t.Run("should use the noise floor when quiet frames exist", func(t *testing.T) {
		rms := []float64{0.004, 0.3, 0.3, 0.3}

		assert.InDelta(t, 0.012, AdaptiveThreshold(rms, 0.01), 1e-12)
	})

	t.Run("should keep the noise floor when it sits above the static threshold", func(t *testing.T) {
		// Arrange - a noisy room: pauses at 0.02 RMS, speech at 0.3
		rms := []float64{0.02, 0.02, 0.02, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3, 0.3}

		// Act
		threshold := AdaptiveThreshold(rms, 0.01)

		// Assert
		assert.InDelta(t, 0.06, threshold, 1e-12)
	})
}

func TestDetectSilence(t *testing.T) {
	t.Run("should emit runs that meet the minimum duration", func(t *testing.T) {
		// Arrange
		rms := []float64{0.5, 0, 0, 0, 0.5, 0, 0.5}

		// Act
		segments := DetectSilence(rms, 20, 0.1, 60)

		// Assert
		require.Len(t, segments, 1)
		assert.Equal(t, 20.0, segments[0].StartMs)
		assert.Equal(t, 80.0, segments[0].EndMs)
		assert.Equal(t, 0.0, segments[0].AvgRMS)
	})

	t.Run("should emit trailing silence under the same rule", func(t *testing.T) {
		rms := []float64{0.5, 0.5, 0.02, 0.04, 0.03}

		segments := DetectSilence(rms, 20, 0.1, 40)

		require.Len(t, segments, 1)
		assert.Equal(t, 40.0, segments[0].StartMs)
		assert.Equal(t, 100.0, segments[0].EndMs)
		assert.InDelta(t, 0.03, segments[0].AvgRMS, 1e-12)
	})

	t.Run("should return an empty list for zero frames", func(t *testing.T) {
		segments := DetectSilence(nil, 20, 0.1, 40)

		assert.NotNil(t, segments)
		assert.Empty(t, segments)
	})

	t.Run("should keep segments ordered and disjoint", func(t *testing.T) {
		rms := []float64{0, 0, 0.5, 0, 0, 0.5, 0, 0}

		segments := DetectSilence(rms, 20, 0.1, 40)

		require.Len(t, segments, 3)
		for i := 1; i < len(segments); i++ {
			assert.LessOrEqual(t, segments[i-1].EndMs, segments[i].StartMs)
		}
	})
}

func TestDetector_Analyze(t *testing.T) {
	cfg := Config{
		SilenceThresholdRMS:  DefaultSilenceThreshold,
		MinSilenceDurationMs: 700,
		ChunkOverlapMs:       200,
		UseAdaptiveThreshold: true,
	}

	t.Run("should find the pause between two tones", func(t *testing.T) {
		// Arrange
		pcm := pcm16(16000, [2]float64{500, 0.5}, [2]float64{1000, 0.0005}, [2]float64{500, 0.5})
		detector := NewDetector(zaptest.NewLogger(t))

		// Act
		analysis, err := detector.Analyze(pcm, Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, cfg)

		// Assert
		require.NoError(t, err)
		require.Len(t, analysis.Segments, 1)
		seg := analysis.Segments[0]
		assert.GreaterOrEqual(t, seg.StartMs, 400.0)
		assert.LessOrEqual(t, seg.StartMs, 600.0)
		assert.GreaterOrEqual(t, seg.EndMs, 1400.0)
		assert.LessOrEqual(t, seg.EndMs, 1600.0)
		assert.Equal(t, DefaultSilenceThreshold*MinAdaptiveFraction, analysis.Threshold)
	})

	t.Run("should find the pause in a noisy room", func(t *testing.T) {
		// Arrange - the pause carries background noise well above the static threshold
		pcm := pcm16(16000, [2]float64{500, 0.42}, [2]float64{1000, 0.028}, [2]float64{500, 0.42})
		detector := NewDetector(zaptest.NewLogger(t))

		// Act
		analysis, err := detector.Analyze(pcm, Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, cfg)

		// Assert
		require.NoError(t, err)
		assert.InDelta(t, 3*0.028/math.Sqrt2, analysis.Threshold, 0.002)
		require.Len(t, analysis.Segments, 1)
		assert.InDelta(t, 500, analysis.Segments[0].StartMs, 1e-6)
		assert.InDelta(t, 1500, analysis.Segments[0].EndMs, 1e-6)
	})

	t.Run("should report no silence for continuous uniform loudness", func(t *testing.T) {
		// Arrange
		pcm := pcm16(16000, [2]float64{3000, 0.4})
		detector := NewDetector(zaptest.NewLogger(t))

		// Act
		analysis, err := detector.Analyze(pcm, Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, cfg)

		// Assert
		require.NoError(t, err)
		assert.Empty(t, analysis.Segments)
	})

	t.Run("should return no segments for audio shorter than one frame", func(t *testing.T) {
		detector := NewDetector(zaptest.NewLogger(t))

		analysis, err := detector.Analyze(make([]byte, 100), Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, cfg)

		require.NoError(t, err)
		assert.Empty(t, analysis.FrameRMS)
		assert.Empty(t, analysis.Segments)
	})

	t.Run("should use the static threshold when adaptive mode is off", func(t *testing.T) {
		// Arrange
		static := cfg
		static.UseAdaptiveThreshold = false
		static.SilenceThresholdRMS = 0.02
		pcm := pcm16(8000, [2]float64{400, 0.5}, [2]float64{800, 0.01}, [2]float64{400, 0.5})
		detector := NewDetector(zaptest.NewLogger(t))

		// Act
		analysis, err := detector.Analyze(pcm, Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, static)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 0.02, analysis.Threshold)
		require.Len(t, analysis.Segments, 1)
		assert.InDelta(t, 800, analysis.Segments[0].MidpointMs(), 40)
	})

	t.Run("should reject negative configuration", func(t *testing.T) {
		bad := cfg
		bad.ChunkOverlapMs = -1
		detector := NewDetector(zaptest.NewLogger(t))

		_, err := detector.Analyze(pcm16(8000, [2]float64{100, 0.1}), Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, bad)

		assert.Error(t, err)
	})
}
