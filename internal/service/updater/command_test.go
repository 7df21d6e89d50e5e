package updater

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tandem-updater/internal/config"
	"github.com/oshokin/tandem-updater/internal/release"
	"github.com/oshokin/tandem-updater/internal/repository/marker"
)

// fakeSource serves canned releases keyed by repository name.
type fakeSource struct {
	releases map[string]*release.Release
}

func (f *fakeSource) Latest(_ context.Context, _, repo string) (*release.Release, error) {
	return f.releases[repo], nil
}

// writeDesktopZip builds a minimal desktop archive for extraction tests.
func writeDesktopZip(t *testing.T, path string) {
	t.Helper()

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)
	entry, err := writer.Create("desktop.exe")
	require.NoError(t, err)

	_, err = entry.Write([]byte("desktop-bits"))
	require.NoError(t, err)

	require.NoError(t, writer.Close())
	require.NoError(t, os.WriteFile(path, buffer.Bytes(), 0o600))
}

// TestDecide_NoMarker always reports an update with an empty current version.
func TestDecide_NoMarker(t *testing.T) {
	t.Parallel()

	task := Task{
		Component:  ComponentPortable,
		MarkerPath: filepath.Join(t.TempDir(), marker.Filename),
	}

	decision, err := decide(context.Background(), task, "v2.0.0")
	require.NoError(t, err)
	require.True(t, decision.Needed)
	require.Empty(t, decision.Current)
	require.Equal(t, "v2.0.0", decision.Latest)
}

// TestDecide_ExactEquality treats any difference, including case, as an update.
func TestDecide_ExactEquality(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	task := Task{
		Component:  ComponentPortable,
		MarkerPath: filepath.Join(dir, marker.Filename),
	}
	ctx := context.Background()

	require.NoError(t, marker.NewFileStore(task.MarkerPath).Save(ctx, "v2.0.0"))

	decision, err := decide(ctx, task, "v2.0.0")
	require.NoError(t, err)
	require.False(t, decision.Needed)
	require.Equal(t, "v2.0.0", decision.Current)

	// Case difference is a difference.
	decision, err = decide(ctx, task, "V2.0.0")
	require.NoError(t, err)
	require.True(t, decision.Needed)
}

// TestRunner_Check resolves both components concurrently against a fake feed.
func TestRunner_Check(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	installDir := filepath.Join(dir, "tandem")
	require.NoError(t, os.MkdirAll(filepath.Join(installDir, NestedPayloadDir), 0o755))

	ctx := context.Background()
	require.NoError(t,
		marker.NewFileStore(filepath.Join(installDir, marker.Filename)).Save(ctx, "v1.0.0"))

	cfg := &config.Config{
		InstallDir: installDir,
		Portable:   config.Task{Owner: "acme", Repo: "tandem-portable"},
		Desktop:    config.Task{Owner: "acme", Repo: "tandem-desktop"},
	}
	require.NoError(t, config.Validate(cfg))

	r := &runner{
		cfg: cfg,
		oracle: &fakeSource{releases: map[string]*release.Release{
			"tandem-portable": {TagName: "v1.0.0"},
			"tandem-desktop":  {TagName: "v3.1.0"},
		}},
		reporter: NopReporter{},
		tasks:    tasksFromConfig(cfg),
		releases: make(map[string]*release.Release, 2),
	}

	decisions, err := r.check(ctx)
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	// Portable marker matches, desktop marker is absent.
	require.False(t, decisions[0].Needed)
	require.True(t, decisions[1].Needed)
	require.True(t, anyNeeded(decisions))
}

// TestExtractDesktop_FailsFastOnStalePayload verifies the ordering invariant:
// skipping the nested-payload replacement must not silently merge archives.
func TestExtractDesktop_FailsFastOnStalePayload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	staging := filepath.Join(dir, "staging")
	nested := filepath.Join(staging, NestedPayloadDir)
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "stale.dll"), []byte("old"), 0o644))

	archivePath := filepath.Join(dir, "desktop.zip")
	writeDesktopZip(t, archivePath)

	r := &runner{
		cfg:        &config.Config{InstallDir: filepath.Join(dir, "tandem")},
		stagingDir: staging,
		archives:   map[string]string{ComponentDesktop: archivePath},
	}

	err := r.extractDesktop(context.Background())
	require.ErrorIs(t, err, errStaleNestedPayload)

	// After the replacement stage the same extraction succeeds.
	require.NoError(t, r.replaceNestedPayload())
	require.NoError(t, r.extractDesktop(context.Background()))

	_, err = os.Stat(filepath.Join(nested, "desktop.exe"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(nested, "stale.dll"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestActivate_SwapsStagingOverLive replaces the live tree and drops the old one.
func TestActivate_SwapsStagingOverLive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	live := filepath.Join(dir, "tandem")
	staging := filepath.Join(dir, ".tandem-staging-test")

	require.NoError(t, os.MkdirAll(live, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(live, "old.txt"), []byte("old"), 0o644))
	require.NoError(t, os.MkdirAll(staging, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "new.txt"), []byte("new"), 0o644))

	r := &runner{
		cfg:        &config.Config{InstallDir: live},
		stagingDir: staging,
	}

	require.NoError(t, r.activate(context.Background()))

	_, err := os.Stat(filepath.Join(live, "new.txt"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(live, "old.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(live + ".old")
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(staging)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestActivate_FirstInstall renames staging directly when no live tree exists.
func TestActivate_FirstInstall(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	live := filepath.Join(dir, "tandem")
	staging := filepath.Join(dir, ".tandem-staging-test")

	require.NoError(t, os.MkdirAll(staging, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "new.txt"), []byte("new"), 0o644))

	r := &runner{
		cfg:        &config.Config{InstallDir: live},
		stagingDir: staging,
	}

	require.NoError(t, r.activate(context.Background()))

	_, err := os.Stat(filepath.Join(live, "new.txt"))
	require.NoError(t, err)
}

// TestActivate_BackupRemovalFailureIsNotFatal: once the staging tree is live,
// a backup that cannot be removed must not report the run as failed.
func TestActivate_BackupRemovalFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	live := filepath.Join(dir, "tandem")
	staging := filepath.Join(dir, ".tandem-staging-test")

	require.NoError(t, os.MkdirAll(live, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(live, "old.txt"), []byte("old"), 0o644))
	require.NoError(t, os.MkdirAll(staging, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "new.txt"), []byte("new"), 0o644))

	r := &runner{
		cfg:        &config.Config{InstallDir: live},
		stagingDir: staging,
		removeBackup: func(string) error {
			return errors.New("backup tree is busy")
		},
	}

	require.NoError(t, r.activate(context.Background()))

	// The new tree is live despite the lingering backup.
	content, err := os.ReadFile(filepath.Join(live, "new.txt"))
	require.NoError(t, err)
	require.Equal(t, "new", string(content))

	_, err = os.Stat(filepath.Join(live+".old", "old.txt"))
	require.NoError(t, err)
}

// TestAssetFilename extracts usable file names from download URLs.
func TestAssetFilename(t *testing.T) {
	t.Parallel()

	require.Equal(t, "tandem-portable.7z",
		assetFilename("https://dl.local/acme/tandem/releases/download/v2/tandem-portable.7z"))
	require.Equal(t, "asset.bin", assetFilename("https://dl.local/"))
}
