package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// ChunkSize is how many bytes are read per iteration of the download loop.
const ChunkSize = 80 * 1024

// UnknownTotal is reported as the total size when the response carries no length.
// Callers must render indeterminate progress instead of a percentage.
const UnknownTotal int64 = -1

// ErrBadStatus is returned when the download endpoint answers with a non-success status.
var ErrBadStatus = errors.New("unexpected http status")

// ProgressFunc receives the running byte count after every chunk.
// total is UnknownTotal when the response has no length header.
type ProgressFunc func(bytesRead, total int64)

// Fetch streams url into a file at dest, reporting progress after every chunk.
// On any failure, including cancellation, the partial file at dest is removed.
func Fetch(ctx context.Context, client *http.Client, url, userAgent, dest string, onProgress ProgressFunc) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	response, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%s, %s: %w", url, response.Status, ErrBadStatus)
	}

	total := response.ContentLength
	if total < 0 {
		total = UnknownTotal
	}

	outputFile, err := os.Create(filepath.Clean(dest))
	if err != nil {
		return fmt.Errorf("create download target: %w", err)
	}

	if err = copyChunks(ctx, outputFile, response.Body, total, onProgress); err != nil {
		_ = outputFile.Close()
		_ = os.Remove(dest)

		return err
	}

	if err = outputFile.Close(); err != nil {
		_ = os.Remove(dest)

		return fmt.Errorf("close download target: %w", err)
	}

	return nil
}

// copyChunks runs the fixed-size read/write loop, checking for cancellation between chunks.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, total int64, onProgress ProgressFunc) error {
	var (
		buffer    = make([]byte, ChunkSize)
		bytesRead int64
	)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("download canceled: %w", err)
		}

		n, readErr := src.Read(buffer)
		if n > 0 {
			if _, writeErr := dst.Write(buffer[:n]); writeErr != nil {
				return fmt.Errorf("write download chunk: %w", writeErr)
			}

			bytesRead += int64(n)

			if onProgress != nil {
				onProgress(bytesRead, total)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}

			return fmt.Errorf("read download chunk: %w", readErr)
		}
	}
}
