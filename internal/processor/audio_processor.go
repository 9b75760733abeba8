package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"meetscribe/internal/audio"
)

// DefaultSampleRate is the rate whisper models are trained on
const DefaultSampleRate = 16000

// ErrFFmpegNotFound is returned when the ffmpeg binary cannot be located
var ErrFFmpegNotFound = errors.New("ffmpeg not found")

// AudioProcessor converts arbitrary recordings (webm, m4a, mp3, ...) into the
// 16-bit mono PCM WAV the splitters and recognizers expect
type AudioProcessor struct {
	logger     *zap.Logger
	ffmpegPath string
	sampleRate int
}

// NewAudioProcessor creates a new AudioProcessor instance
func NewAudioProcessor(logger *zap.Logger, ffmpegPath string) *AudioProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &AudioProcessor{
		logger:     logger,
		ffmpegPath: ffmpegPath,
		sampleRate: DefaultSampleRate,
	}
}

// NeedsConversion reports whether data must go through ffmpeg before splitting
func (a *AudioProcessor) NeedsConversion(data []byte) bool {
	return !audio.IsWAV(data)
}

// ConvertToWAV pipes data through ffmpeg and returns a canonical WAV buffer
func (a *AudioProcessor) ConvertToWAV(ctx context.Context, data []byte) ([]byte, error) {
	if _, err := exec.LookPath(a.ffmpegPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFFmpegNotFound, a.ffmpegPath)
	}

	a.logger.Debug("starting ffmpeg conversion",
		zap.Int("input_bytes", len(data)),
		zap.Int("sample_rate", a.sampleRate))

	cmd := exec.CommandContext(ctx, a.ffmpegPath, a.args()...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	a.logStderr(stderr.String())
	if runErr != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %w", runErr)
	}

	// ffmpeg cannot seek back on a pipe, so its header carries placeholder sizes
	meta, err := audio.ParseMetadata(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ffmpeg produced unreadable output: %w", err)
	}
	pcm := meta.Payload(stdout.Bytes())
	pcm = pcm[:meta.AlignDown(len(pcm))]

	a.logger.Info("converted audio to WAV",
		zap.Int("input_bytes", len(data)),
		zap.Int("output_bytes", len(pcm)+audio.HeaderSize),
		zap.Duration("duration", meta.Duration()))

	return audio.BuildChunk(meta, pcm), nil
}

func (a *AudioProcessor) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-ar", strconv.Itoa(a.sampleRate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	}
}

// logStderr logs ffmpeg errors as warnings and everything else at debug
func (a *AudioProcessor) logStderr(output string) {
	output = strings.TrimSpace(output)
	if output == "" {
		return
	}
	if containsFFmpegError(output) {
		a.logger.Warn("ffmpeg stderr", zap.String("output", output))
	} else {
		a.logger.Debug("ffmpeg stderr", zap.String("output", output))
	}
}

// containsFFmpegError checks if stderr output contains actual errors vs info
func containsFFmpegError(output string) bool {
	errorIndicators := []string{
		"Error opening",
		"Invalid data",
		"No such file",
		"Permission denied",
		"could not find codec",
	}

	for _, indicator := range errorIndicators {
		if strings.Contains(output, indicator) {
			return true
		}
	}
	return false
}
