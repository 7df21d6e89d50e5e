package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oshokin/tandem-updater/internal/logger"
)

// logFilePermissions restricts journal files to the owning user.
const logFilePermissions = 0o600

// Journal appends updater activity to two on-disk logs: a timestamped
// free-text action log and a plain "component: version" record log.
// Both files are append-only and never truncated.
type Journal struct {
	// actionPath is the location of the timestamped action log.
	actionPath string
	// installPath is the location of the installed-versions record log.
	installPath string
	// mu serializes appends from concurrent download goroutines.
	mu sync.Mutex
	// now is swappable for tests.
	now func() time.Time
}

// New creates a journal writing to the provided log file paths.
func New(actionPath, installPath string) *Journal {
	return &Journal{
		actionPath:  filepath.Clean(actionPath),
		installPath: filepath.Clean(installPath),
		now:         time.Now,
	}
}

// Action appends a timestamped free-text line to the action log.
// Journal failures are logged and swallowed: a broken log file must not
// abort an otherwise healthy update run.
func (j *Journal) Action(ctx context.Context, format string, args ...any) {
	line := fmt.Sprintf("%s %s\n", j.now().Format(time.RFC3339), fmt.Sprintf(format, args...))

	if err := j.append(j.actionPath, line); err != nil {
		logger.WarnKV(ctx, "Unable to append to action log", "path", j.actionPath, "error", err)
	}
}

// Install appends a "component: version" record to the install log.
func (j *Journal) Install(ctx context.Context, component, version string) {
	line := fmt.Sprintf("%s: %s\n", component, version)

	if err := j.append(j.installPath, line); err != nil {
		logger.WarnKV(ctx, "Unable to append to install log", "path", j.installPath, "error", err)
	}
}

// append opens the file in append-only mode and writes a single line.
func (j *Journal) append(path, line string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, logFilePermissions)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	if _, err = file.WriteString(line); err != nil {
		_ = file.Close()

		return fmt.Errorf("append log line: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}

	return nil
}
