package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oshokin/tandem-updater/internal/logger"
)

var (
	// ErrToolMissing is returned when the bundled extractor binary is absent.
	ErrToolMissing = errors.New("extractor binary not found")
	// ErrExtractionFailed is returned when the extractor subprocess reports failure.
	ErrExtractionFailed = errors.New("archive extraction failed")
	// errUnsupportedFormat is returned for archive extensions this installer does not handle.
	errUnsupportedFormat = errors.New("unsupported archive format")
)

// ExtractSevenZip extracts the 7z archive at src into destDir by invoking the
// bundled extractor at toolPath as a subprocess. Extractor output is captured
// and forwarded to the log; a nonzero exit code fails the extraction.
func ExtractSevenZip(ctx context.Context, toolPath, src, destDir string) error {
	if _, err := os.Stat(toolPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", toolPath, ErrToolMissing)
		}

		return fmt.Errorf("stat extractor binary: %w", err)
	}

	if err := os.MkdirAll(destDir, defaultDirPermissions); err != nil {
		return fmt.Errorf("create extraction target: %w", err)
	}

	// x = extract with full paths, -o = output directory (no space after the
	// flag, per 7z syntax), -y = assume yes on all prompts.
	cmd := exec.CommandContext(ctx, toolPath, "x", src, "-o"+destDir, "-y")

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if output := strings.TrimSpace(stdout.String()); output != "" {
		logger.DebugKV(ctx, "Extractor output", "stdout", output)
	}

	if output := strings.TrimSpace(stderr.String()); output != "" {
		logger.WarnKV(ctx, "Extractor errors", "stderr", output)
	}

	if runErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = runErr.Error()
		}

		return fmt.Errorf("%s: %s: %w", filepath.Base(src), detail, ErrExtractionFailed)
	}

	return nil
}

// Extract dispatches on the archive extension: zip archives are extracted
// natively, 7z archives through the bundled external extractor.
func Extract(ctx context.Context, toolPath, src, destDir string) error {
	switch strings.ToLower(filepath.Ext(src)) {
	case ".zip":
		return ExtractZip(ctx, src, destDir)
	case ".7z":
		return ExtractSevenZip(ctx, toolPath, src, destDir)
	default:
		return fmt.Errorf("%s: %w", src, errUnsupportedFormat)
	}
}
