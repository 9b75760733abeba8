package transcriber

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Result is the outcome of transcribing one file
type Result struct {
	Provider   string `json:"provider"`
	Source     string `json:"source"`
	Text       string `json:"text"`
	DurationMs int64  `json:"duration_ms"`
}

// Validate checks if the Result has valid values
func (r *Result) Validate() error {
	if r.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if r.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}
	if r.DurationMs < 0 {
		return fmt.Errorf("duration_ms cannot be negative")
	}
	return nil
}

type chunkErrorEntry struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

type batchLine struct {
	Provider string `json:"provider"`
	Source   string `json:"source"`
	*BatchResult
	Errors []chunkErrorEntry `json:"errors,omitempty"`
}

// JSONOutput writes transcription results as JSON lines
type JSONOutput struct {
	writer io.Writer
	logger *zap.Logger
}

// NewJSONOutput creates a new JSONOutput instance
func NewJSONOutput(writer io.Writer, logger *zap.Logger) *JSONOutput {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONOutput{
		writer: writer,
		logger: logger,
	}
}

// OutputResult writes a single-file result as one JSON line
func (jo *JSONOutput) OutputResult(result Result) error {
	if err := result.Validate(); err != nil {
		jo.logger.Error("invalid result", zap.Error(err))
		return fmt.Errorf("invalid result: %w", err)
	}

	if err := jo.writeLine(result); err != nil {
		return err
	}

	jo.logger.Debug("output JSON result",
		zap.String("provider", result.Provider),
		zap.String("source", result.Source),
		zap.Int("text_length", len(result.Text)))
	return nil
}

// OutputBatch writes a chunk batch as one JSON line, listing the errors of failed chunks
func (jo *JSONOutput) OutputBatch(provider, source string, batch *BatchResult) error {
	if batch == nil {
		return fmt.Errorf("invalid batch: nil result")
	}

	line := batchLine{Provider: provider, Source: source, BatchResult: batch}
	for _, o := range batch.Outcomes {
		if o.Err != nil {
			line.Errors = append(line.Errors, chunkErrorEntry{Index: o.Index, Path: o.Path, Error: o.Err.Error()})
		}
	}

	if err := jo.writeLine(line); err != nil {
		return err
	}

	jo.logger.Debug("output JSON batch",
		zap.String("source", source),
		zap.Int("succeeded", batch.SuccessCount),
		zap.Int("failed", batch.FailedCount))
	return nil
}

func (jo *JSONOutput) writeLine(v interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		jo.logger.Error("failed to marshal to JSON", zap.Error(err))
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}

	if _, err := fmt.Fprintf(jo.writer, "%s\n", jsonBytes); err != nil {
		jo.logger.Error("failed to write JSON output", zap.Error(err))
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	return nil
}
