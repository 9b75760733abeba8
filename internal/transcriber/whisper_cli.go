package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"meetscribe/internal/gpu"
)

// WhisperCLI runs a whisper.cpp command line binary for every recognition
type WhisperCLI struct {
	binaryPath string
	modelPath  string
	threads    int
	useGPU     bool
	logger     *zap.Logger
}

// NewWhisperCLILoader returns a RecognizerLoader that validates the binary and model
// once and decides on GPU offload using detector. A nil detector means CPU only.
func NewWhisperCLILoader(binaryPath string, threads int, detector *gpu.Detector, logger *zap.Logger) RecognizerLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, modelPath string) (Recognizer, error) {
		resolved, err := exec.LookPath(binaryPath)
		if err != nil {
			return nil, fmt.Errorf("whisper binary %q not found: %w", binaryPath, err)
		}
		if _, err := os.Stat(modelPath); err != nil {
			return nil, fmt.Errorf("model file unavailable: %w", err)
		}

		useGPU := detector != nil && detector.IsAvailable(ctx)
		logger.Info("whisper recognizer ready",
			zap.String("binary", resolved),
			zap.String("model", modelPath),
			zap.Int("threads", threads),
			zap.Bool("use_gpu", useGPU))

		return &WhisperCLI{
			binaryPath: resolved,
			modelPath:  modelPath,
			threads:    threads,
			useGPU:     useGPU,
			logger:     logger,
		}, nil
	}
}

// UsesGPU reports whether recognition is offloaded to a GPU
func (w *WhisperCLI) UsesGPU() bool {
	return w.useGPU
}

// Recognize transcribes the WAV file at wavPath and returns the plain text
func (w *WhisperCLI) Recognize(ctx context.Context, wavPath string, opts RecognizeOptions) (string, error) {
	cmd := exec.CommandContext(ctx, w.binaryPath, w.args(wavPath, opts)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper failed: %w: %s", err, lastLine(stderr.String()))
	}

	lines := strings.Split(stdout.String(), "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}

	w.logger.Debug("whisper recognition completed",
		zap.String("file", wavPath),
		zap.Int("lines", len(parts)))

	return strings.Join(parts, " "), nil
}

func (w *WhisperCLI) args(wavPath string, opts RecognizeOptions) []string {
	args := []string{"-m", w.modelPath, "-f", wavPath, "-nt", "-np"}
	if w.threads > 0 {
		args = append(args, "-t", strconv.Itoa(w.threads))
	}
	if opts.Language != "" {
		args = append(args, "-l", opts.Language)
	}
	if opts.Vocabulary != "" {
		args = append(args, "--prompt", opts.Vocabulary)
	}
	if !w.useGPU {
		args = append(args, "-ng")
	}
	return args
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	return s
}
