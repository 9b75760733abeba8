package transcriber

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"meetscribe/internal/audio"
	"meetscribe/internal/performance"
	"meetscribe/internal/vad"
)

type span struct {
	ms        int
	amplitude float64
}

// speechWAV renders 16kHz mono sine spans; low amplitudes stand in for pauses
func speechWAV(spans ...span) []byte {
	const rate = 16000
	var pcm []byte
	i := 0
	for _, s := range spans {
		n := rate * s.ms / 1000
		for j := 0; j < n; j++ {
			v := int16(s.amplitude * 32767 * math.Sin(2*math.Pi*200*float64(i)/rate))
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(v))
			i++
		}
	}
	return audio.BuildChunk(audio.Metadata{SampleRate: rate, Channels: 1, BitsPerSample: 16}, pcm)
}

func testVADConfig() vad.Config {
	return vad.Config{
		SilenceThresholdRMS:  vad.DefaultSilenceThreshold,
		MinSilenceDurationMs: 700,
		ChunkOverlapMs:       200,
		UseAdaptiveThreshold: true,
	}
}

func testMonitor() *performance.PerformanceMonitor {
	return performance.NewPerformanceMonitor(nil, nil)
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// scriptedChunks is a chunkFunc returning texts in call order and recording inputs
type scriptedChunks struct {
	mu     sync.Mutex
	texts  []string
	errs   map[int]error
	sizes  []int
	names  []string
	onCall func(call int, data []byte) (string, error)
}

func (s *scriptedChunks) fn(ctx context.Context, data []byte, filename string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := len(s.sizes)
	s.sizes = append(s.sizes, len(data))
	s.names = append(s.names, filename)

	if s.onCall != nil {
		return s.onCall(call, data)
	}
	if err, ok := s.errs[call]; ok {
		return "", err
	}
	if call < len(s.texts) {
		return s.texts[call], nil
	}
	return "", nil
}

type fakeConverter struct {
	out    []byte
	err    error
	called bool
}

func (f *fakeConverter) NeedsConversion(data []byte) bool {
	return !audio.IsWAV(data)
}

func (f *fakeConverter) ConvertToWAV(ctx context.Context, data []byte) ([]byte, error) {
	f.called = true
	return f.out, f.err
}
