package audio

import (
	"go.uber.org/zap"
)

const (
	// DefaultMaxChunkBytes is the split ceiling, kept under the remote service limit
	DefaultMaxChunkBytes = 20 * 1024 * 1024

	// RemoteHardLimitBytes is the request size the remote service rejects above
	RemoteHardLimitBytes = 25_165_824
)

// SizeSplitter cuts a WAV buffer into frame-aligned chunks under a byte ceiling
type SizeSplitter struct {
	maxBytes int
	logger   *zap.Logger
}

// NewSizeSplitter creates a new SizeSplitter; maxBytes <= 0 selects DefaultMaxChunkBytes
func NewSizeSplitter(maxBytes int, logger *zap.Logger) *SizeSplitter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChunkBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SizeSplitter{
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// MaxBytes returns the configured ceiling
func (s *SizeSplitter) MaxBytes() int {
	return s.maxBytes
}

// NeedsSplit reports whether a buffer of totalBytes exceeds the ceiling
func (s *SizeSplitter) NeedsSplit(totalBytes int) bool {
	return totalBytes > s.maxBytes
}

// Split returns buf unchanged when it fits under the ceiling, otherwise
// sequential non-overlapping chunks that each carry a fresh header
func (s *SizeSplitter) Split(buf []byte) ([][]byte, error) {
	if !s.NeedsSplit(len(buf)) {
		return [][]byte{buf}, nil
	}

	meta, err := ParseMetadata(buf)
	if err != nil {
		return nil, err
	}

	frame := meta.FrameSize()
	if frame <= 0 {
		return nil, invalidContainer("zero frame size (channels=%d, bits=%d)", meta.Channels, meta.BitsPerSample)
	}

	// Never split mid-frame
	target := meta.AlignDown(s.maxBytes - HeaderSize)
	if target < frame {
		return nil, invalidContainer("chunk ceiling %d smaller than one frame of %d bytes", s.maxBytes, frame)
	}

	payload := meta.Payload(buf)
	payload = payload[:meta.AlignDown(len(payload))] // drop a dangling partial frame
	chunks := make([][]byte, 0, len(payload)/target+1)
	for start := 0; start < len(payload); start += target {
		end := start + target
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, BuildChunk(meta, payload[start:end]))
	}

	s.logger.Debug("split audio by size",
		zap.Int("input_bytes", len(buf)),
		zap.Int("chunk_target_bytes", target),
		zap.Int("chunks", len(chunks)))

	return chunks, nil
}
