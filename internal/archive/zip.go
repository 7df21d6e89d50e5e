package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// errEntryEscapesTarget is returned for archive entries that resolve outside the target directory.
var errEntryEscapesTarget = errors.New("archive entry escapes target directory")

// defaultDirPermissions is used for directories created during extraction.
const defaultDirPermissions os.FileMode = 0o755

// ExtractZip extracts every entry of the zip archive at src into destDir,
// overwriting existing files of the same name.
func ExtractZip(ctx context.Context, src, destDir string) error {
	reader, err := zip.OpenReader(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open zip archive: %w", err)
	}

	defer func() {
		_ = reader.Close()
	}()

	if err = os.MkdirAll(destDir, defaultDirPermissions); err != nil {
		return fmt.Errorf("create extraction target: %w", err)
	}

	for _, entry := range reader.File {
		if err = ctx.Err(); err != nil {
			return fmt.Errorf("extraction canceled: %w", err)
		}

		if err = extractZipEntry(entry, destDir); err != nil {
			return err
		}
	}

	return nil
}

// extractZipEntry writes a single archive entry under destDir.
func extractZipEntry(entry *zip.File, destDir string) error {
	target, err := entryTarget(destDir, entry.Name)
	if err != nil {
		return err
	}

	if entry.FileInfo().IsDir() {
		if err = os.MkdirAll(target, defaultDirPermissions); err != nil {
			return fmt.Errorf("create directory %s: %w", entry.Name, err)
		}

		return nil
	}

	if err = os.MkdirAll(filepath.Dir(target), defaultDirPermissions); err != nil {
		return fmt.Errorf("create parent of %s: %w", entry.Name, err)
	}

	source, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %s: %w", entry.Name, err)
	}

	defer func() {
		_ = source.Close()
	}()

	mode := entry.Mode()
	if mode == 0 {
		mode = 0o644
	}

	output, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", entry.Name, err)
	}

	if _, err = io.Copy(output, source); err != nil {
		_ = output.Close()

		return fmt.Errorf("extract entry %s: %w", entry.Name, err)
	}

	if err = output.Close(); err != nil {
		return fmt.Errorf("close extracted file %s: %w", entry.Name, err)
	}

	return nil
}

// entryTarget resolves an entry name under destDir, rejecting path traversal.
func entryTarget(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))

	cleanDest := filepath.Clean(destDir)
	if target != cleanDest && !strings.HasPrefix(target, cleanDest+string(os.PathSeparator)) {
		return "", fmt.Errorf("entry %q: %w", name, errEntryEscapesTarget)
	}

	return target, nil
}
