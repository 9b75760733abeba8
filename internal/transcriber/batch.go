package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"meetscribe/internal/transcript"
)

// ErrEmptyTranscript marks a chunk whose transcription produced no text
var ErrEmptyTranscript = errors.New("empty transcript")

// FileTranscriber is the part of Provider needed to transcribe chunk files
type FileTranscriber interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// ChunkOutcome records what happened to one chunk of a batch
type ChunkOutcome struct {
	Index     int    `json:"index"`
	Path      string `json:"path"`
	Text      string `json:"text,omitempty"`
	Succeeded bool   `json:"succeeded"`
	Err       error  `json:"-"`
}

// BatchResult aggregates a fault-tolerant multi-chunk transcription
type BatchResult struct {
	CombinedText string         `json:"combined_text"`
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	TotalChunks  int            `json:"total_chunks"`
	Outcomes     []ChunkOutcome `json:"outcomes"`
}

// Partial reports whether some but not all chunks failed
func (r *BatchResult) Partial() bool {
	return r.FailedCount > 0 && r.SuccessCount > 0
}

// TranscribeChunks transcribes each file independently. A failed or empty chunk is
// recorded and the remaining chunks are still attempted; the combined text is built
// from the chunks that succeeded. It returns an error only when no chunk succeeded or
// ctx was cancelled, and the result is non-nil in both cases.
func TranscribeChunks(ctx context.Context, t FileTranscriber, paths []string, logger *zap.Logger) (*BatchResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	result := &BatchResult{
		TotalChunks: len(paths),
		Outcomes:    make([]ChunkOutcome, 0, len(paths)),
	}
	if len(paths) == 0 {
		return result, newFailed("no chunks to transcribe", nil)
	}

	texts := make([]string, 0, len(paths))
	var lastErr error

	for i, path := range paths {
		outcome := ChunkOutcome{Index: i, Path: path}

		// Stop requesting further chunks once cancelled
		if err := ctx.Err(); err != nil {
			for j := i; j < len(paths); j++ {
				result.Outcomes = append(result.Outcomes, ChunkOutcome{Index: j, Path: paths[j], Err: err})
				result.FailedCount++
			}
			result.CombinedText = transcript.Merge(texts)
			return result, newFailed("chunk transcription cancelled", err)
		}

		text, err := t.TranscribeFile(ctx, path)
		text = strings.TrimSpace(text)
		if err == nil && text == "" {
			err = ErrEmptyTranscript
		}

		if err != nil {
			logger.Warn("chunk failed, continuing with remaining chunks",
				zap.Int("chunk_index", i),
				zap.String("path", path),
				zap.Error(err))
			outcome.Err = err
			result.FailedCount++
			lastErr = err
		} else {
			outcome.Text = text
			outcome.Succeeded = true
			result.SuccessCount++
			texts = append(texts, text)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	result.CombinedText = transcript.Merge(texts)

	logger.Info("chunk batch transcribed",
		zap.Int("total_chunks", result.TotalChunks),
		zap.Int("succeeded", result.SuccessCount),
		zap.Int("failed", result.FailedCount))

	if result.SuccessCount == 0 {
		return result, &Error{
			Code:        CodeFailed,
			Message:     fmt.Sprintf("all %d chunks failed", result.TotalChunks),
			Recoverable: true,
			Cause:       lastErr,
		}
	}
	return result, nil
}
