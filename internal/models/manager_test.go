package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func modelServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if !strings.HasSuffix(r.URL.Path, "/ggml-base.en.bin") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestManager_GetModelPath(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), "/models", "base.en")

	assert.Equal(t, filepath.Join("/models", "ggml-base.en.bin"), manager.GetModelPath("base.en"))
	assert.Equal(t, "base.en", manager.ModelName())
}

func TestManager_AvailableModels(t *testing.T) {
	manager := NewManager(zaptest.NewLogger(t), t.TempDir(), "base.en")

	models := manager.AvailableModels()

	assert.Contains(t, models, "base.en")
	assert.Contains(t, models, "large-v3")
	assert.True(t, manager.IsValidModelName("BASE.EN"))
	assert.False(t, manager.IsValidModelName("invalid-model-name"))
	assert.Equal(t, "142 MB", manager.ModelSize("base.en"))
	assert.Equal(t, "Unknown", manager.ModelSize("nope"))
}

func TestManager_EnsureModel(t *testing.T) {
	t.Run("should return the existing model without downloading", func(t *testing.T) {
		// Arrange
		var hits int32
		server := modelServer(t, "weights", &hits)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-base.en.bin"), []byte("dummy model content"), 0644))
		manager := NewManager(zaptest.NewLogger(t), dir, "base.en", WithBaseURL(server.URL))

		// Act
		path, err := manager.EnsureModel(context.Background(), nil)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "ggml-base.en.bin"), path)
		assert.Zero(t, atomic.LoadInt32(&hits))
	})

	t.Run("should download a missing model and report completion", func(t *testing.T) {
		// Arrange
		var hits int32
		server := modelServer(t, "model weights", &hits)
		dir := filepath.Join(t.TempDir(), "nested")
		manager := NewManager(zaptest.NewLogger(t), dir, "base.en", WithBaseURL(server.URL+"/"))
		var last float64

		// Act
		path, err := manager.EnsureModel(context.Background(), func(p float64) { last = p })

		// Assert
		require.NoError(t, err)
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "model weights", string(content))
		assert.Equal(t, 100.0, last)
		assert.True(t, manager.IsModelDownloaded("base.en"))
		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err), "temporary file should be gone")
	})

	t.Run("should fail fast when auto-download is disabled", func(t *testing.T) {
		// Arrange
		var hits int32
		server := modelServer(t, "weights", &hits)
		manager := NewManager(zaptest.NewLogger(t), t.TempDir(), "base.en",
			WithBaseURL(server.URL), WithAutoDownload(false))

		// Act
		_, err := manager.EnsureModel(context.Background(), nil)

		// Assert
		assert.ErrorIs(t, err, ErrModelNotAvailable)
		assert.Zero(t, atomic.LoadInt32(&hits))
	})
}

func TestManager_DownloadModel(t *testing.T) {
	t.Run("should reject unknown model names", func(t *testing.T) {
		manager := NewManager(zaptest.NewLogger(t), t.TempDir(), "base.en")

		err := manager.DownloadModel(context.Background(), "invalid-model-name", nil)

		assert.ErrorIs(t, err, ErrUnknownModel)
	})

	t.Run("should surface HTTP failures and leave nothing behind", func(t *testing.T) {
		// Arrange
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()
		dir := t.TempDir()
		manager := NewManager(zaptest.NewLogger(t), dir, "base.en", WithBaseURL(server.URL))

		// Act
		err := manager.DownloadModel(context.Background(), "base.en", nil)

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to download model")
		assert.False(t, manager.IsModelDownloaded("base.en"))
		entries, _ := os.ReadDir(dir)
		assert.Empty(t, entries)
	})

	t.Run("should log the approximate model size before downloading", func(t *testing.T) {
		// Arrange
		var hits int32
		server := modelServer(t, "weights", &hits)
		core, logs := observer.New(zap.InfoLevel)
		manager := NewManager(zap.New(core), t.TempDir(), "base.en", WithBaseURL(server.URL))

		// Act
		err := manager.DownloadModel(context.Background(), "base.en", nil)

		// Assert
		require.NoError(t, err)
		entries := logs.FilterMessage("downloading model").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "142 MB", entries[0].ContextMap()["approx_size"])
	})

	t.Run("should honour context cancellation", func(t *testing.T) {
		// Arrange
		var hits int32
		server := modelServer(t, "weights", &hits)
		manager := NewManager(zaptest.NewLogger(t), t.TempDir(), "base.en", WithBaseURL(server.URL))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// Act
		err := manager.DownloadModel(ctx, "base.en", nil)

		// Assert
		assert.ErrorIs(t, err, context.Canceled)
	})
}
