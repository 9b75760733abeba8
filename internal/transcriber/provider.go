package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"meetscribe/internal/audio"
	"meetscribe/internal/vad"
)

// Provider turns recorded audio into text
type Provider interface {
	TranscribeFile(ctx context.Context, path string) (string, error)
	TranscribeBuffer(ctx context.Context, data []byte, filename string) (string, error)
	Name() string
}

// SplitMethod selects how oversized audio is cut into chunks
type SplitMethod string

const (
	SplitMethodVAD  SplitMethod = "vad"
	SplitMethodSize SplitMethod = "size"
)

// ParseSplitMethod converts a configuration value into a SplitMethod
func ParseSplitMethod(s string) (SplitMethod, error) {
	switch SplitMethod(s) {
	case SplitMethodVAD, SplitMethodSize:
		return SplitMethod(s), nil
	case "":
		return SplitMethodVAD, nil
	default:
		return "", fmt.Errorf("unknown split method %q (want %q or %q)", s, SplitMethodVAD, SplitMethodSize)
	}
}

// Options controls how providers split oversized audio
type Options struct {
	SplitMethod   SplitMethod
	MaxChunkBytes int
	VAD           vad.Config
	Language      string
	Vocabulary    string
}

// DefaultOptions splits with VAD under the default 20MB ceiling
func DefaultOptions() Options {
	return Options{
		SplitMethod:   SplitMethodVAD,
		MaxChunkBytes: audio.DefaultMaxChunkBytes,
		VAD:           vad.DefaultConfig(),
	}
}

// Converter turns non-WAV input into a WAV buffer
type Converter interface {
	NeedsConversion(data []byte) bool
	ConvertToWAV(ctx context.Context, data []byte) ([]byte, error)
}

func readAudioFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, newFileNotFound(path, err)
		}
		return nil, newFailed(fmt.Sprintf("failed to read %s", path), err)
	}
	return data, nil
}
