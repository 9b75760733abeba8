package audio

import (
	"fmt"

	"go.uber.org/zap"

	"meetscribe/internal/vad"
)

// SplitReport summarizes how a VAD split was performed
type SplitReport struct {
	SilenceSegments int       `json:"silence_segments"`
	Threshold       float64   `json:"threshold"`
	SplitPointsMs   []float64 `json:"split_points_ms"`
	Chunks          int       `json:"chunks"`
}

// VADSplitter cuts a WAV buffer at the midpoints of detected silence,
// keeping an overlap on both sides of every cut
type VADSplitter struct {
	detector *vad.Detector
	logger   *zap.Logger
}

// NewVADSplitter creates a new VADSplitter instance
func NewVADSplitter(logger *zap.Logger) *VADSplitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VADSplitter{
		detector: vad.NewDetector(logger),
		logger:   logger,
	}
}

// Split returns overlapping chunks cut inside silence, or buf itself when no usable silence exists.
// Falling back to a size split for oversized input is the caller's decision.
func (s *VADSplitter) Split(buf []byte, cfg vad.Config) ([][]byte, error) {
	chunks, _, err := s.SplitWithReport(buf, cfg)
	return chunks, err
}

// SplitWithReport is Split plus diagnostics about the chosen split points
func (s *VADSplitter) SplitWithReport(buf []byte, cfg vad.Config) ([][]byte, *SplitReport, error) {
	meta, err := ParseMetadata(buf)
	if err != nil {
		return nil, nil, err
	}
	if meta.FrameSize() <= 0 {
		return nil, nil, invalidContainer("zero frame size (channels=%d, bits=%d)", meta.Channels, meta.BitsPerSample)
	}

	payload := meta.Payload(buf)
	analysis, err := s.detector.Analyze(payload, vad.Format{
		SampleRate:    int(meta.SampleRate),
		Channels:      int(meta.Channels),
		BitsPerSample: int(meta.BitsPerSample),
	}, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("voice activity analysis failed: %w", err)
	}

	report := &SplitReport{
		SilenceSegments: len(analysis.Segments),
		Threshold:       analysis.Threshold,
		SplitPointsMs:   make([]float64, 0, len(analysis.Segments)),
	}

	if len(analysis.Segments) == 0 {
		report.Chunks = 1
		s.logger.Debug("no silence found, keeping audio as a single chunk",
			zap.Int("bytes", len(buf)))
		return [][]byte{buf}, report, nil
	}

	bytesPerMs := meta.BytesPerMillisecond()
	overlap := meta.AlignDown(int(cfg.ChunkOverlapMs * bytesPerMs))
	total := meta.AlignDown(len(payload))

	var chunks [][]byte
	start, lastSplit := 0, 0

	for _, seg := range analysis.Segments {
		split := meta.AlignDown(int(seg.MidpointMs() * bytesPerMs))
		if split <= lastSplit || split >= total {
			continue
		}

		end := split + overlap
		if end > total {
			end = total
		}
		if end > start {
			chunks = append(chunks, BuildChunk(meta, payload[start:end]))
			report.SplitPointsMs = append(report.SplitPointsMs, seg.MidpointMs())
		}

		next := split - overlap
		if next < start {
			next = start
		}
		start = next
		lastSplit = split
	}

	// No cut survived alignment, so the original buffer is the only chunk
	if len(report.SplitPointsMs) == 0 {
		report.Chunks = 1
		return [][]byte{buf}, report, nil
	}

	if start < total {
		chunks = append(chunks, BuildChunk(meta, payload[start:total]))
	}

	report.Chunks = len(chunks)
	s.logger.Debug("split audio at silence",
		zap.Int("input_bytes", len(buf)),
		zap.Int("silence_segments", len(analysis.Segments)),
		zap.Int("overlap_bytes", overlap),
		zap.Int("chunks", len(chunks)))

	return chunks, report, nil
}
