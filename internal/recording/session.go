package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetscribe/internal/transcriber"
)

// ErrSessionStopped is returned when a chunk is started after the session was stopped
var ErrSessionStopped = errors.New("recording session stopped")

// Clock returns the current time
type Clock func() time.Time

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRotateHook registers fn to be called with the path of every newly started chunk.
// The capture layer uses it to switch its writer to the new file.
func WithRotateHook(fn func(path string)) Option {
	return func(s *Session) {
		s.onRotate = fn
	}
}

// Session tracks the ordered chunk files of one live capture
type Session struct {
	id               string
	dir              string
	maxChunkDuration time.Duration
	clock            Clock
	logger           *zap.Logger
	onRotate         func(path string)

	// saveMu orders manifest writes; each write snapshots state while holding it
	saveMu sync.Mutex

	mu             sync.Mutex
	startedAt      time.Time
	endedAt        time.Time
	chunkStartedAt time.Time
	chunks         []string
	stopped        bool
}

// NewSession creates dir if needed and returns an empty session. A zero
// maxChunkDuration disables rotation.
func NewSession(dir string, maxChunkDuration time.Duration, clock Clock, opts ...Option) (*Session, error) {
	if dir == "" {
		return nil, fmt.Errorf("session directory cannot be empty")
	}
	if maxChunkDuration < 0 {
		return nil, fmt.Errorf("max chunk duration cannot be negative, got %s", maxChunkDuration)
	}
	if clock == nil {
		clock = time.Now
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	s := &Session{
		id:               uuid.NewString(),
		dir:              dir,
		maxChunkDuration: maxChunkDuration,
		clock:            clock,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session identifier written to the manifest
func (s *Session) ID() string {
	return s.id
}

// Dir returns the directory holding the chunk files
func (s *Session) Dir() string {
	return s.dir
}

// StartChunk begins the next chunk and returns its path
func (s *Session) StartChunk() (string, error) {
	s.mu.Lock()
	path, err := s.startChunkLocked(s.clock())
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.afterRotate(path)
	return path, nil
}

func (s *Session) startChunkLocked(now time.Time) (string, error) {
	if s.stopped {
		return "", ErrSessionStopped
	}
	if len(s.chunks) == 0 {
		s.startedAt = now
	}
	path := filepath.Join(s.dir, fmt.Sprintf("chunk_%03d.wav", len(s.chunks)))
	s.chunks = append(s.chunks, path)
	s.chunkStartedAt = now
	return path, nil
}

func (s *Session) afterRotate(path string) {
	s.logger.Info("recording chunk started",
		zap.String("session_id", s.id),
		zap.String("path", path))

	if err := s.SaveManifest(); err != nil {
		s.logger.Warn("failed to save session manifest", zap.Error(err))
	}
	if s.onRotate != nil {
		s.onRotate(path)
	}
}

// ChunkPaths returns the chunk paths in recording order
func (s *Session) ChunkPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chunks...)
}

// ShouldRotate reports whether a chunk that has been recording for elapsed must be
// closed. A non-positive maxDuration never rotates.
func ShouldRotate(elapsed, maxDuration time.Duration) bool {
	return maxDuration > 0 && elapsed >= maxDuration
}

// Tick rotates to a new chunk when the current one has reached the duration ceiling.
// It returns the new chunk path, or "" when no rotation happened.
func (s *Session) Tick(now time.Time) (string, error) {
	s.mu.Lock()
	if s.stopped || len(s.chunks) == 0 || !ShouldRotate(now.Sub(s.chunkStartedAt), s.maxChunkDuration) {
		s.mu.Unlock()
		return "", nil
	}
	path, err := s.startChunkLocked(now)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	s.afterRotate(path)
	return path, nil
}

// RunRotation drives Tick from a ticker until ctx is done or the session stops
func RunRotation(ctx context.Context, s *Session, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Stopped() {
				return
			}
			if _, err := s.Tick(s.clock()); err != nil {
				s.logger.Error("chunk rotation failed", zap.Error(err))
			}
		}
	}
}

// Stop ends the capture. Later calls are no-ops.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.endedAt = s.clock()
	chunks := len(s.chunks)
	s.mu.Unlock()

	s.logger.Info("recording session stopped",
		zap.String("session_id", s.id),
		zap.Int("chunks", chunks))

	if err := s.SaveManifest(); err != nil {
		s.logger.Warn("failed to save session manifest", zap.Error(err))
	}
}

// Stopped reports whether Stop has been called
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Complete stops the session and transcribes every chunk, tolerating individual chunk
// failures. An error is returned only when no chunk could be transcribed or ctx was
// cancelled; the partial result is returned alongside it.
func (s *Session) Complete(ctx context.Context, t transcriber.FileTranscriber) (*transcriber.BatchResult, error) {
	s.Stop()

	result, err := transcriber.TranscribeChunks(ctx, t, s.ChunkPaths(), s.logger)
	if err != nil {
		s.logger.Error("session transcription failed",
			zap.String("session_id", s.id),
			zap.Error(err))
		return result, err
	}

	if result.Partial() {
		s.logger.Warn("session transcribed with failed chunks",
			zap.String("session_id", s.id),
			zap.Int("succeeded", result.SuccessCount),
			zap.Int("failed", result.FailedCount))
	}
	return result, nil
}
