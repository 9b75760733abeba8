package models

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ProgressFunc receives download progress as a percentage in [0, 100]
type ProgressFunc func(progress float64)

const progressInterval = 500 * time.Millisecond

func downloadFile(ctx context.Context, client *http.Client, url, dest string, onProgress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "meetscribe (Go HTTP Client)")

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp)

	reader := &progressReader{
		reader:     resp.Body,
		total:      resp.ContentLength,
		onProgress: onProgress,
	}

	written, err := io.Copy(out, reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, fmt.Errorf("failed to write model data: %w", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return written, fmt.Errorf("short download: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return written, fmt.Errorf("failed to move downloaded model to final location: %w", err)
	}

	if onProgress != nil {
		onProgress(100)
	}
	return written, nil
}

// progressReader reports progress at most once per progressInterval
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	onProgress ProgressFunc
	lastReport time.Time
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)

		now := time.Now()
		if pr.onProgress != nil && pr.total > 0 && now.Sub(pr.lastReport) >= progressInterval {
			pr.lastReport = now
			pr.onProgress(float64(pr.downloaded) / float64(pr.total) * 100)
		}
	}
	return n, err
}
