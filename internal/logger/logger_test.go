package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLoggerWithLevel(t *testing.T) {
	t.Run("should enable only the requested level and above", func(t *testing.T) {
		// Act
		logger, err := NewLoggerWithLevel("warn")

		// Assert
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zap.InfoLevel))
		assert.True(t, logger.Core().Enabled(zap.WarnLevel))
		assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
	})

	t.Run("should accept mixed case and surrounding spaces", func(t *testing.T) {
		logger, err := NewLoggerWithLevel(" DEBUG ")

		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	})

	t.Run("should reject unknown levels", func(t *testing.T) {
		logger, err := NewLoggerWithLevel("verbose")

		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("should write JSON to stderr", func(t *testing.T) {
		config, err := levelConfig(zap.NewProductionConfig(), "info")

		require.NoError(t, err)
		assert.Equal(t, "json", config.Encoding)
		assert.Equal(t, []string{"stderr"}, config.OutputPaths)
	})
}

func TestNewDevelopmentLogger(t *testing.T) {
	t.Run("should write console output to stderr at the requested level", func(t *testing.T) {
		// Act
		config, err := levelConfig(zap.NewDevelopmentConfig(), "info")
		logger, buildErr := NewDevelopmentLogger("info")

		// Assert
		require.NoError(t, err)
		require.NoError(t, buildErr)
		assert.Equal(t, "console", config.Encoding)
		assert.Equal(t, []string{"stderr"}, config.OutputPaths)
		assert.False(t, logger.Core().Enabled(zap.DebugLevel))
		assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	})

	t.Run("should reject unknown levels", func(t *testing.T) {
		_, err := NewDevelopmentLogger("chatty")

		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	t.Run("should select the encoder by mode", func(t *testing.T) {
		// Act
		dev, devErr := New("debug", true)
		prod, prodErr := New("error", false)

		// Assert
		require.NoError(t, devErr)
		require.NoError(t, prodErr)
		assert.True(t, dev.Core().Enabled(zap.DebugLevel))
		assert.False(t, prod.Core().Enabled(zap.WarnLevel))
	})
}
