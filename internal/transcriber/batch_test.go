package transcriber

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// mapTranscriber answers by path and counts calls
type mapTranscriber struct {
	texts  map[string]string
	errs   map[string]error
	calls  []string
	before func(path string)
}

func (m *mapTranscriber) TranscribeFile(ctx context.Context, path string) (string, error) {
	m.calls = append(m.calls, path)
	if m.before != nil {
		m.before(path)
	}
	if err, ok := m.errs[path]; ok {
		return "", err
	}
	return m.texts[path], nil
}

func TestTranscribeChunks(t *testing.T) {
	ctx := context.Background()

	t.Run("should combine every chunk in order", func(t *testing.T) {
		// Arrange
		m := &mapTranscriber{texts: map[string]string{
			"chunk_000.wav": "good morning",
			"chunk_001.wav": " let's begin ",
		}}

		// Act
		result, err := TranscribeChunks(ctx, m, []string{"chunk_000.wav", "chunk_001.wav"}, zaptest.NewLogger(t))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "good morning let's begin", result.CombinedText)
		assert.Equal(t, 2, result.SuccessCount)
		assert.Zero(t, result.FailedCount)
		assert.False(t, result.Partial())
	})

	t.Run("should keep going after a chunk fails", func(t *testing.T) {
		// Arrange
		core, logs := observer.New(zap.WarnLevel)
		m := &mapTranscriber{
			texts: map[string]string{"a": "first", "c": "third"},
			errs:  map[string]error{"b": errors.New("timeout")},
		}

		// Act
		result, err := TranscribeChunks(ctx, m, []string{"a", "b", "c"}, zap.New(core))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "first third", result.CombinedText)
		assert.Equal(t, 2, result.SuccessCount)
		assert.Equal(t, 1, result.FailedCount)
		assert.Equal(t, 3, result.TotalChunks)
		assert.True(t, result.Partial())
		require.Len(t, result.Outcomes, 3)
		assert.False(t, result.Outcomes[1].Succeeded)
		assert.EqualError(t, result.Outcomes[1].Err, "timeout")
		assert.Equal(t, 1, logs.FilterMessage("chunk failed, continuing with remaining chunks").Len())
	})

	t.Run("should count empty transcripts as failures", func(t *testing.T) {
		m := &mapTranscriber{texts: map[string]string{"a": "words", "b": "   "}}

		result, err := TranscribeChunks(ctx, m, []string{"a", "b"}, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, result.FailedCount)
		assert.ErrorIs(t, result.Outcomes[1].Err, ErrEmptyTranscript)
	})

	t.Run("should fail when every chunk fails", func(t *testing.T) {
		// Arrange
		cause := errors.New("service down")
		m := &mapTranscriber{errs: map[string]error{"a": cause, "b": cause}}

		// Act
		result, err := TranscribeChunks(ctx, m, []string{"a", "b"}, nil)

		// Assert
		require.NotNil(t, result)
		assert.True(t, IsCode(err, CodeFailed))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "all 2 chunks failed")
		assert.Empty(t, result.CombinedText)
	})

	t.Run("should fail on an empty chunk list", func(t *testing.T) {
		result, err := TranscribeChunks(ctx, &mapTranscriber{}, nil, nil)

		require.NotNil(t, result)
		assert.True(t, IsCode(err, CodeFailed))
	})

	t.Run("should stop and return partial results when cancelled", func(t *testing.T) {
		// Arrange
		ctx, cancel := context.WithCancel(context.Background())
		m := &mapTranscriber{
			texts:  map[string]string{"a": "kept", "b": "never"},
			before: func(path string) { cancel() },
		}

		// Act
		result, err := TranscribeChunks(ctx, m, []string{"a", "b", "c"}, nil)

		// Assert
		assert.ErrorIs(t, err, context.Canceled)
		assert.True(t, IsRecoverable(err))
		assert.Equal(t, []string{"a"}, m.calls)
		assert.Equal(t, "kept", result.CombinedText)
		assert.Equal(t, 1, result.SuccessCount)
		assert.Equal(t, 2, result.FailedCount)
		assert.Len(t, result.Outcomes, 3)
	})
}
