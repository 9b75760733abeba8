package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLoggerWithLevel creates a production JSON logger writing to stderr at the given
// level, so that stdout stays free for transcription output
func NewLoggerWithLevel(level string) (*zap.Logger, error) {
	config, err := levelConfig(zap.NewProductionConfig(), level)
	if err != nil {
		return nil, err
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build production logger: %w", err)
	}
	return logger, nil
}

// NewDevelopmentLogger creates a human-readable console logger on stderr with stack
// traces on warnings, for local debugging of a transcription run
func NewDevelopmentLogger(level string) (*zap.Logger, error) {
	config, err := levelConfig(zap.NewDevelopmentConfig(), level)
	if err != nil {
		return nil, err
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build development logger: %w", err)
	}
	return logger, nil
}

// New picks the development or production logger
func New(level string, development bool) (*zap.Logger, error) {
	if development {
		return NewDevelopmentLogger(level)
	}
	return NewLoggerWithLevel(level)
}

func levelConfig(config zap.Config, level string) (zap.Config, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil {
		return config, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	config.Level = zap.NewAtomicLevelAt(lvl)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config, nil
}
