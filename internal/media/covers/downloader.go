// Package covers downloads novel cover images and prepares them for serving.
package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/folioapp/folio-server/internal/media/images"
)

const (
	// maxCoverSize limits download size to prevent memory exhaustion.
	maxCoverSize = 10 * 1024 * 1024 // 10MB

	// downloadTimeout is the maximum time for a cover download.
	downloadTimeout = 30 * time.Second
)

// DownloadResult contains the result of a cover download operation.
type DownloadResult struct {
	Success  bool   // Whether the download and storage succeeded
	Width    int    // Stored image width after scaling
	Height   int    // Stored image height after scaling
	Size     int64  // Stored file size in bytes
	BlurHash string // Placeholder hash for clients
	Error    error  // Error if Success is false
}

// Downloader fetches novel covers from their source sites.
type Downloader struct {
	httpClient *http.Client
	storage    *images.Storage
	logger     *slog.Logger
}

// NewDownloader creates a new cover downloader.
func NewDownloader(storage *images.Storage, logger *slog.Logger) *Downloader {
	return &Downloader{
		httpClient: &http.Client{
			Timeout: downloadTimeout,
		},
		storage: storage,
		logger:  logger,
	}
}

// Download fetches a cover from the URL, normalizes it, and stores it
// for the given novel ID. The result carries the stored dimensions and
// the BlurHash placeholder for the novel record.
func (d *Downloader) Download(ctx context.Context, novelID, url string) *DownloadResult {
	result := &DownloadResult{}

	if url == "" {
		result.Error = errors.New("empty cover URL")
		return result
	}

	// Create timeout context
	downloadCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = fmt.Errorf("create request: %w", err)
		return result
	}

	// Novel sites often reject Go's default agent
	req.Header.Set("User-Agent", "folio-server/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Errorf("download: %w", err)
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		result.Error = fmt.Errorf("download failed: status %d", resp.StatusCode)
		return result
	}

	// Read with size limit
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverSize))
	if err != nil {
		result.Error = fmt.Errorf("read data: %w", err)
		return result
	}

	// Decode, scale down, re-encode as JPEG, compute the placeholder.
	processed, err := images.Process(data)
	if err != nil {
		result.Error = fmt.Errorf("process cover: %w", err)
		return result
	}

	if err := d.storage.Save(novelID, processed.JPEG); err != nil {
		result.Error = fmt.Errorf("store: %w", err)
		return result
	}

	result.Success = true
	result.Width = processed.Width
	result.Height = processed.Height
	result.Size = int64(len(processed.JPEG))
	result.BlurHash = processed.BlurHash

	d.logger.Info("downloaded cover",
		"novel_id", novelID,
		"size", result.Size,
		"width", result.Width,
		"height", result.Height,
	)

	return result
}
