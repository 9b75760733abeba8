package recording

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"meetscribe/internal/transcriber"
)

// ManifestFile is the name of the manifest kept in every session directory
const ManifestFile = "manifest.yaml"

// Manifest lists the chunks of a session so it can be transcribed after the capture
// process has gone away
type Manifest struct {
	SessionID        string        `yaml:"session_id"`
	StartedAt        time.Time     `yaml:"started_at"`
	EndedAt          time.Time     `yaml:"ended_at,omitempty"`
	MaxChunkDuration time.Duration `yaml:"max_chunk_duration"`
	// Chunk file names relative to the session directory, in recording order
	Chunks []string `yaml:"chunks"`
}

// ChunkPaths resolves the chunk names against dir
func (m *Manifest) ChunkPaths(dir string) []string {
	paths := make([]string, 0, len(m.Chunks))
	for _, name := range m.Chunks {
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths
}

// Manifest returns a snapshot of the session state
func (s *Session) Manifest() Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.chunks))
	for _, path := range s.chunks {
		names = append(names, filepath.Base(path))
	}
	return Manifest{
		SessionID:        s.id,
		StartedAt:        s.startedAt,
		EndedAt:          s.endedAt,
		MaxChunkDuration: s.maxChunkDuration,
		Chunks:           names,
	}
}

// SaveManifest writes the session manifest into the session directory
func (s *Session) SaveManifest() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	m := s.Manifest()
	return SaveManifest(s.dir, &m)
}

// SaveManifest writes m to dir, replacing any previous manifest atomically
func SaveManifest(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the manifest stored in dir
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	for _, name := range m.Chunks {
		if name == "" || filepath.Base(name) != name {
			return nil, fmt.Errorf("invalid chunk name %q in manifest", name)
		}
	}
	return &m, nil
}

// TranscribeDir transcribes a previously recorded session directory using its manifest
func TranscribeDir(ctx context.Context, dir string, t transcriber.FileTranscriber, logger *zap.Logger) (*transcriber.BatchResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	logger.Info("transcribing recorded session",
		zap.String("session_id", m.SessionID),
		zap.String("dir", dir),
		zap.Int("chunks", len(m.Chunks)))

	return transcriber.TranscribeChunks(ctx, t, m.ChunkPaths(dir), logger)
}
