package marker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Filename is the fixed name of the version marker file
// inside each component's install directory.
const Filename = "version.txt"

// markerFilePermissions restricts marker files to the owning user.
const markerFilePermissions = 0o600

// ErrNotFound is returned when the marker file does not exist yet.
var ErrNotFound = errors.New("version marker not found")

// FileStore persists a component's installed version as the sole content
// of a single-line text file.
type FileStore struct {
	// path is the filesystem location of the marker file.
	path string
	// mu protects concurrent access to the marker file.
	mu sync.Mutex
}

// NewFileStore creates a store that reads/writes the marker at the provided path.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: filepath.Clean(path),
	}
}

// Path returns the marker file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the installed version from disk.
func (s *FileStore) Load(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read version marker: %w", err)
	}

	return strings.TrimSpace(string(contents)), nil
}

// Save writes the version to disk. The write goes to a temporary file in the
// same directory followed by a rename, so readers never observe a partial marker.
func (s *FileStore) Save(_ context.Context, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, Filename+".tmp-*")
	if err != nil {
		return fmt.Errorf("create marker temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err = tmp.WriteString(version); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("write version marker: %w", err)
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("close marker temp file: %w", err)
	}

	if err = os.Chmod(tmpName, markerFilePermissions); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("chmod version marker: %w", err)
	}

	if err = os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replace version marker: %w", err)
	}

	return nil
}
