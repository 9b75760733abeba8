package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"meetscribe/internal/vad"
)

type span struct {
	ms        int
	amplitude float64
}

// spansWAV renders consecutive sine spans into one 16-bit mono WAV
func spansWAV(sampleRate int, spans ...span) []byte {
	var pcm []byte
	i := 0
	for _, s := range spans {
		n := sampleRate * s.ms / 1000
		for j := 0; j < n; j++ {
			v := int16(s.amplitude * 32767 * math.Sin(2*math.Pi*300*float64(i)/float64(sampleRate)))
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(v))
			i++
		}
	}
	return BuildChunk(monoMeta(uint32(sampleRate)), pcm)
}

func TestVADSplitter_Split(t *testing.T) {
	cfg := vad.Config{
		SilenceThresholdRMS:  vad.DefaultSilenceThreshold,
		MinSilenceDurationMs: 700,
		ChunkOverlapMs:       200,
		UseAdaptiveThreshold: true,
	}

	t.Run("should cut at the silence midpoint with overlap on both sides", func(t *testing.T) {
		// Arrange
		buf := spansWAV(16000, span{500, 0.5}, span{1000, 0.0005}, span{500, 0.5})
		splitter := NewVADSplitter(zaptest.NewLogger(t))

		// Act
		chunks, report, err := splitter.SplitWithReport(buf, cfg)

		// Assert
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, 1, report.SilenceSegments)
		require.Len(t, report.SplitPointsMs, 1)
		assert.InDelta(t, 1000, report.SplitPointsMs[0], 100)

		first, err := ParseMetadata(chunks[0])
		require.NoError(t, err)
		second, err := ParseMetadata(chunks[1])
		require.NoError(t, err)

		// 32 bytes per ms: split at ~32000, overlap 6400
		assert.InDelta(t, 38400, int(first.DataSize), 3200)
		assert.InDelta(t, 38400, int(second.DataSize), 3200)
		assert.Zero(t, first.DataSize%2)
		assert.Zero(t, second.DataSize%2)

		// The tail of the first chunk reappears at the head of the second
		overlap := 2 * 6400
		payload := buf[HeaderSize:]
		firstPayload := first.Payload(chunks[0])
		secondPayload := second.Payload(chunks[1])
		assert.Equal(t, firstPayload[len(firstPayload)-overlap:], secondPayload[:overlap])
		assert.Equal(t, payload[:len(firstPayload)], firstPayload)
		assert.Equal(t, payload[len(payload)-len(secondPayload):], secondPayload)
	})

	t.Run("should return the buffer unchanged for continuous speech", func(t *testing.T) {
		// Arrange
		buf := spansWAV(16000, span{2000, 0.5})
		splitter := NewVADSplitter(zaptest.NewLogger(t))

		// Act
		chunks, err := splitter.Split(buf, cfg)

		// Assert
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Same(t, &buf[0], &chunks[0][0])
	})

	t.Run("should ignore pauses shorter than the minimum", func(t *testing.T) {
		// Arrange
		buf := spansWAV(16000, span{500, 0.5}, span{300, 0.0005}, span{500, 0.5})
		splitter := NewVADSplitter(zaptest.NewLogger(t))

		// Act
		chunks, err := splitter.Split(buf, cfg)

		// Assert
		require.NoError(t, err)
		assert.Len(t, chunks, 1)
	})

	t.Run("should produce one chunk per silence plus the tail", func(t *testing.T) {
		// Arrange
		buf := spansWAV(8000,
			span{600, 0.4}, span{900, 0.0003},
			span{600, 0.4}, span{900, 0.0003},
			span{600, 0.4})
		splitter := NewVADSplitter(zaptest.NewLogger(t))

		// Act
		chunks, err := splitter.Split(buf, cfg)

		// Assert
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for _, chunk := range chunks {
			meta, err := ParseMetadata(chunk)
			require.NoError(t, err)
			assert.Equal(t, uint32(8000), meta.SampleRate)
			assert.Zero(t, int(meta.DataSize)%meta.FrameSize())
		}
	})

	t.Run("should reject invalid containers", func(t *testing.T) {
		splitter := NewVADSplitter(zaptest.NewLogger(t))

		_, err := splitter.Split(make([]byte, 100), cfg)

		assert.ErrorIs(t, err, ErrInvalidContainer)
	})
}
