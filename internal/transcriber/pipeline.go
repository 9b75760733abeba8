package transcriber

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"meetscribe/internal/audio"
	"meetscribe/internal/performance"
	"meetscribe/internal/transcript"
	"meetscribe/internal/vad"
)

// chunkFunc transcribes one buffer that is already under the size ceiling
type chunkFunc func(ctx context.Context, data []byte, filename string) (string, error)

// pipeline holds the policy shared by every provider: convert, check size, split,
// transcribe chunks one after another and merge the results
type pipeline struct {
	name         string
	opts         Options
	transcribe   chunkFunc
	sizeSplitter *audio.SizeSplitter
	vadSplitter  *audio.VADSplitter
	converter    Converter
	monitor      *performance.PerformanceMonitor
	logger       *zap.Logger
}

func newPipeline(name string, transcribe chunkFunc, opts Options, converter Converter, monitor *performance.PerformanceMonitor, logger *zap.Logger) *pipeline {
	if opts.SplitMethod == "" {
		opts.SplitMethod = SplitMethodVAD
	}
	return &pipeline{
		name:         name,
		opts:         opts,
		transcribe:   transcribe,
		sizeSplitter: audio.NewSizeSplitter(opts.MaxChunkBytes, logger),
		vadSplitter:  audio.NewVADSplitter(logger),
		converter:    converter,
		monitor:      monitor,
		logger:       logger,
	}
}

// Run transcribes data, splitting it first when it exceeds the ceiling.
// Any chunk failure fails the whole run.
func (p *pipeline) Run(ctx context.Context, data []byte, filename string) (string, error) {
	data, err := p.prepare(ctx, data)
	if err != nil {
		return "", err
	}

	if p.sizeSplitter.NeedsSplit(len(data)) {
		p.logger.Info("audio exceeds size ceiling, splitting before transcription",
			zap.String("provider", p.name),
			zap.Int("bytes", len(data)),
			zap.Int("max_bytes", p.sizeSplitter.MaxBytes()),
			zap.String("split_method", string(p.opts.SplitMethod)))
		return p.runSplit(ctx, data, filename, p.sizeSplitter)
	}

	text, err := p.transcribe(ctx, data, filename)
	if err == nil {
		return strings.TrimSpace(text), nil
	}

	// The service rejected a buffer that passed the proactive check
	if IsCode(err, CodeFileTooLarge) && len(data) > audio.HeaderSize*2 {
		ceiling := min(p.sizeSplitter.MaxBytes(), len(data)/2)
		p.logger.Warn("service reported audio too large, retrying as chunks",
			zap.String("provider", p.name),
			zap.Int("bytes", len(data)),
			zap.Int("reactive_max_bytes", ceiling))
		return p.runSplit(ctx, data, filename, audio.NewSizeSplitter(ceiling, p.logger))
	}

	return "", asFailed("transcription failed", err)
}

func (p *pipeline) prepare(ctx context.Context, data []byte) ([]byte, error) {
	if p.converter == nil || !p.converter.NeedsConversion(data) {
		return data, nil
	}
	converted, err := p.converter.ConvertToWAV(ctx, data)
	if err != nil {
		return nil, newFailed("failed to convert audio to WAV", err)
	}
	return converted, nil
}

func (p *pipeline) runSplit(ctx context.Context, data []byte, filename string, ceiling *audio.SizeSplitter) (string, error) {
	chunks, method, err := p.split(data, ceiling)
	if err != nil {
		if errors.Is(err, audio.ErrInvalidContainer) {
			return "", newInvalidContainer(err)
		}
		return "", newFailed("failed to split audio", err)
	}

	texts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", newFailed("transcription cancelled", err)
		}

		text, err := p.transcribe(ctx, chunk, chunkFilename(filename, i))
		if err != nil {
			p.logger.Error("chunk transcription failed",
				zap.String("provider", p.name),
				zap.Int("chunk_index", i),
				zap.Int("total_chunks", len(chunks)),
				zap.Error(err))
			return "", chunkError(fmt.Sprintf("chunk %d of %d failed", i+1, len(chunks)), err)
		}

		p.logger.Debug("chunk transcribed",
			zap.String("provider", p.name),
			zap.Int("chunk_index", i),
			zap.Int("chunk_bytes", len(chunk)),
			zap.Int("text_length", len(text)))
		texts = append(texts, text)
	}

	if method == SplitMethodVAD {
		return transcript.MergeWithOverlap(texts), nil
	}
	return transcript.Merge(texts), nil
}

// split cuts data using the configured method. A VAD split that finds no usable
// silence falls back to a size split, and VAD chunks still above the ceiling are
// size split in place.
func (p *pipeline) split(data []byte, ceiling *audio.SizeSplitter) ([][]byte, SplitMethod, error) {
	if p.opts.SplitMethod == SplitMethodSize {
		chunks, err := ceiling.Split(data)
		if err != nil {
			return nil, "", err
		}
		p.monitor.RecordSplit(string(SplitMethodSize), len(chunks))
		return chunks, SplitMethodSize, nil
	}

	vadChunks, err := p.vadSplitter.Split(data, p.opts.VAD)
	if err != nil && !errors.Is(err, vad.ErrUnsupportedBitDepth) {
		return nil, "", err
	}

	if err != nil || len(vadChunks) == 1 {
		reason := "no usable silence found"
		if err != nil {
			reason = "voice activity detection does not support this bit depth"
		}
		p.logger.Info(reason+", falling back to size split",
			zap.String("provider", p.name),
			zap.Int("bytes", len(data)))
		chunks, err := ceiling.Split(data)
		if err != nil {
			return nil, "", err
		}
		p.monitor.RecordSplit(string(SplitMethodSize), len(chunks))
		return chunks, SplitMethodSize, nil
	}

	chunks := make([][]byte, 0, len(vadChunks))
	for _, chunk := range vadChunks {
		if !ceiling.NeedsSplit(len(chunk)) {
			chunks = append(chunks, chunk)
			continue
		}
		sub, err := ceiling.Split(chunk)
		if err != nil {
			return nil, "", err
		}
		chunks = append(chunks, sub...)
	}

	p.monitor.RecordSplit(string(SplitMethodVAD), len(chunks))
	return chunks, SplitMethodVAD, nil
}

func chunkFilename(filename string, index int) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." {
		base = "audio"
	}
	return fmt.Sprintf("%s_chunk%03d.wav", base, index)
}

// chunkError keeps the code of a typed chunk failure and wraps anything else as FAILED
func chunkError(message string, err error) *Error {
	var te *Error
	if errors.As(err, &te) && te.Code != CodeFailed && te.Code != CodeFileTooLarge {
		return &Error{Code: te.Code, Message: message, Recoverable: te.Recoverable, Cause: err}
	}
	return newFailed(message, err)
}
