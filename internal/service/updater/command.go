package updater

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/oshokin/tandem-updater/internal/archive"
	"github.com/oshokin/tandem-updater/internal/config"
	"github.com/oshokin/tandem-updater/internal/download"
	"github.com/oshokin/tandem-updater/internal/journal"
	"github.com/oshokin/tandem-updater/internal/logger"
	"github.com/oshokin/tandem-updater/internal/release"
	"github.com/oshokin/tandem-updater/internal/repository/marker"
)

// errStaleNestedPayload is returned when the desktop extraction target still
// holds content, which would mean silently merging into a stale payload.
var errStaleNestedPayload = errors.New("nested payload directory not emptied before desktop extraction")

// Options are inputs accepted by the updater entry point.
type Options struct {
	// ConfigPath is the optional path to the settings YAML file.
	ConfigPath string
	// CheckOnly stops the run after the check stage without touching the install.
	CheckOnly bool
	// Reporter receives stage and progress events. Defaults to a logging reporter.
	Reporter Reporter
}

// runner holds the mutable state and helpers for a single update execution.
// It is intentionally unexported; call Run(ctx, Options) from callers.
type runner struct {
	cfg       *config.Config
	oracle    releaseSource
	reporter  Reporter
	journal   *journal.Journal
	tasks     []Task
	checkOnly bool

	mu          sync.Mutex                  // Guards the maps below during concurrent stages.
	releases    map[string]*release.Release // Component -> cached feed response.
	infos       map[string]*release.Info    // Component -> tag + resolved asset URL.
	archives    map[string]string           // Component -> downloaded archive path.
	downloadDir string                      // Where archives are downloaded before extraction.
	stagingDir  string                      // Where the new install tree is built before activation.
	lockHeld    bool
	earlyExit   bool // Set when the run legitimately stops before activation.

	// removeBackup is swappable for tests; nil means os.RemoveAll.
	removeBackup func(path string) error
}

// Run executes the update pipeline and is the public entry point for the CLI.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tandem-updater")

	r, err := newRunner(ctx, opts)
	if err != nil {
		return err
	}

	runErr := r.run(ctx)

	// Cleanup runs on every outcome so temporary archives never pile up.
	r.cleanup(ctx)

	if runErr != nil {
		r.reporter.Stage(StageFailed)
		r.journal.Action(ctx, "update failed: %v", runErr)
		logger.ErrorKV(ctx, "Update run failed", "error", runErr)

		return runErr
	}

	if !r.earlyExit {
		r.setStage(ctx, StageDone)
		logger.Info(ctx, "Update completed")
	}

	return nil
}

// Check resolves the per-component update decisions without taking the run
// lock or touching the install. It is the read-only half of the pipeline.
func Check(ctx context.Context, opts *Options) ([]Decision, error) {
	ctx = logger.WithName(ctx, "tandem-updater")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	r := &runner{
		cfg:      cfg,
		oracle:   release.NewClient(cfg.FeedURL, cfg.UserAgent, cfg.Timeout),
		reporter: NopReporter{},
		tasks:    tasksFromConfig(cfg),
		releases: make(map[string]*release.Release, 2),
	}

	return r.check(ctx)
}

// newRunner loads configuration and takes the single-run lock.
func newRunner(ctx context.Context, opts *Options) (*runner, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	reporter := opts.Reporter
	if reporter == nil {
		reporter = newLogReporter(ctx)
	}

	r := &runner{
		cfg:       cfg,
		oracle:    release.NewClient(cfg.FeedURL, cfg.UserAgent, cfg.Timeout),
		reporter:  reporter,
		journal:   journal.New(cfg.ActionLogFile, cfg.InstallLogFile),
		tasks:     tasksFromConfig(cfg),
		checkOnly: opts.CheckOnly,
		releases:  make(map[string]*release.Release, 2),
		infos:     make(map[string]*release.Info, 2),
		archives:  make(map[string]string, 2),
	}

	if err = acquireRunLock(ctx); err != nil {
		return nil, err
	}

	r.lockHeld = true

	return r, nil
}

// run drives the staged pipeline in order. Any error aborts the whole run.
func (r *runner) run(ctx context.Context) error {
	r.setStage(ctx, StageCheck)
	r.journal.Action(ctx, "update check started")

	decisions, err := r.check(ctx)
	if err != nil {
		return fmt.Errorf("check for updates: %w", err)
	}

	if !anyNeeded(decisions) {
		r.setStage(ctx, StageUpToDate)
		r.journal.Action(ctx, "all components are up to date")
		r.earlyExit = true

		return nil
	}

	if r.checkOnly {
		r.journal.Action(ctx, "update available, check-only run stopped before download")
		r.earlyExit = true

		return nil
	}

	r.setStage(ctx, StageFetchMetadata)

	if err = r.resolveAssets(); err != nil {
		return fmt.Errorf("resolve release assets: %w", err)
	}

	r.setStage(ctx, StageDownload)

	if err = r.downloadAssets(ctx); err != nil {
		return fmt.Errorf("download release assets: %w", err)
	}

	r.setStage(ctx, StageExtractPortable)

	if err = r.extractPortable(ctx); err != nil {
		return fmt.Errorf("extract portable bundle: %w", err)
	}

	r.setStage(ctx, StageReplaceNestedPayload)

	if err = r.replaceNestedPayload(); err != nil {
		return fmt.Errorf("replace nested payload: %w", err)
	}

	r.setStage(ctx, StageExtractDesktop)

	if err = r.extractDesktop(ctx); err != nil {
		return fmt.Errorf("extract desktop app: %w", err)
	}

	r.setStage(ctx, StagePersistMarkers)

	if err = r.persistMarkers(ctx); err != nil {
		return fmt.Errorf("persist version markers: %w", err)
	}

	r.setStage(ctx, StageActivate)

	if err = r.activate(ctx); err != nil {
		return fmt.Errorf("activate new install: %w", err)
	}

	for _, task := range r.tasks {
		r.journal.Install(ctx, task.Component, r.infos[task.Component].Tag)
	}

	r.journal.Action(ctx, "update completed: portable %s, desktop %s",
		r.infos[ComponentPortable].Tag, r.infos[ComponentDesktop].Tag)

	return nil
}

// check queries the feed for both components concurrently and compares
// the results to the local markers.
func (r *runner) check(ctx context.Context) ([]Decision, error) {
	decisions := make([]Decision, len(r.tasks))

	group, groupCtx := errgroup.WithContext(ctx)

	for i, task := range r.tasks {
		i, task := i, task

		group.Go(func() error {
			rel, err := r.oracle.Latest(groupCtx, task.Owner, task.Repo)
			if err != nil {
				return fmt.Errorf("%s: %w", task.Component, err)
			}

			decision, err := decide(groupCtx, task, rel.TagName)
			if err != nil {
				return fmt.Errorf("%s: %w", task.Component, err)
			}

			r.storeRelease(task.Component, rel)
			decisions[i] = decision

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	for _, decision := range decisions {
		logger.InfoKV(ctx, "Checked component",
			"component", decision.Component,
			"current", decision.Current,
			"latest", decision.Latest,
			"needed", decision.Needed)
	}

	return decisions, nil
}

// resolveAssets pairs each cached release with the asset matching the task pattern.
func (r *runner) resolveAssets() error {
	for _, task := range r.tasks {
		info, err := release.Resolve(r.releases[task.Component], task.AssetPattern)
		if err != nil {
			return fmt.Errorf("%s: %w", task.Component, err)
		}

		r.infos[task.Component] = info
	}

	return nil
}

// downloadAssets streams both archives to a temporary directory concurrently.
func (r *runner) downloadAssets(ctx context.Context) error {
	downloadDir, err := os.MkdirTemp("", "tandem-updater-")
	if err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}

	r.downloadDir = downloadDir

	group, groupCtx := errgroup.WithContext(ctx)

	for _, task := range r.tasks {
		task := task
		info := r.infos[task.Component]
		dest := filepath.Join(downloadDir, task.Component+"-"+assetFilename(info.AssetURL))

		group.Go(func() error {
			err := download.Fetch(groupCtx, nil, info.AssetURL, r.cfg.UserAgent, dest,
				func(bytesRead, total int64) {
					r.reporter.Progress(task.Component, bytesRead, total)
				})
			if err != nil {
				return fmt.Errorf("%s: %w", task.Component, err)
			}

			r.storeArchive(task.Component, dest)
			logger.InfoKV(ctx, "Downloaded asset", "component", task.Component, "path", dest)

			return nil
		})
	}

	return group.Wait()
}

// extractPortable unpacks the portable bundle into a fresh staging directory
// created beside the install root so the later rename stays on one volume.
func (r *runner) extractPortable(ctx context.Context) error {
	parent := filepath.Dir(filepath.Clean(r.cfg.InstallDir))

	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create install parent: %w", err)
	}

	stagingDir, err := os.MkdirTemp(parent, ".tandem-staging-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	r.stagingDir = stagingDir

	return archive.Extract(ctx, r.cfg.ExtractorPath, r.archives[ComponentPortable], stagingDir)
}

// replaceNestedPayload removes whatever nested payload the portable archive
// shipped and recreates the directory empty. Stale files must not survive
// into the new desktop extraction.
func (r *runner) replaceNestedPayload() error {
	nested := filepath.Join(r.stagingDir, NestedPayloadDir)

	if err := os.RemoveAll(nested); err != nil {
		return fmt.Errorf("delete old nested payload: %w", err)
	}

	if err := os.MkdirAll(nested, 0o755); err != nil {
		return fmt.Errorf("recreate nested payload directory: %w", err)
	}

	return nil
}

// extractDesktop unpacks the desktop archive into the nested payload
// directory, failing fast if the directory still holds content.
func (r *runner) extractDesktop(ctx context.Context) error {
	nested := filepath.Join(r.stagingDir, NestedPayloadDir)

	empty, err := dirIsEmpty(nested)
	if err != nil {
		return err
	}

	if !empty {
		return errStaleNestedPayload
	}

	return archive.Extract(ctx, r.cfg.ExtractorPath, r.archives[ComponentDesktop], nested)
}

// persistMarkers writes both new version markers into the staging tree, so
// the markers and the payload go live together in the activation rename.
func (r *runner) persistMarkers(ctx context.Context) error {
	markerPaths := map[string]string{
		ComponentPortable: filepath.Join(r.stagingDir, marker.Filename),
		ComponentDesktop:  filepath.Join(r.stagingDir, NestedPayloadDir, marker.Filename),
	}

	for component, path := range markerPaths {
		if err := marker.NewFileStore(path).Save(ctx, r.infos[component].Tag); err != nil {
			return fmt.Errorf("%s: %w", component, err)
		}
	}

	return nil
}

// activate swaps the staging tree over the live install root. The rename is
// atomic because staging was created on the same volume.
func (r *runner) activate(ctx context.Context) error {
	live := filepath.Clean(r.cfg.InstallDir)
	old := live + ".old"

	if _, err := os.Stat(live); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat install root: %w", err)
		}

		// First install: no live tree to move aside.
		if err = os.Rename(r.stagingDir, live); err != nil {
			return fmt.Errorf("activate first install: %w", err)
		}

		r.stagingDir = ""

		return nil
	}

	// A leftover .old tree from a crashed run would block the rename.
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("remove previous backup tree: %w", err)
	}

	if err := os.Rename(live, old); err != nil {
		return fmt.Errorf("move live install aside: %w", err)
	}

	if err := os.Rename(r.stagingDir, live); err != nil {
		// Best effort: put the previous install back.
		_ = os.Rename(old, live)

		return fmt.Errorf("activate staged install: %w", err)
	}

	r.stagingDir = ""

	// The new install is already live and its markers consistent; a backup
	// that cannot be removed must not report the run as failed.
	if err := r.removeBackupTree(old); err != nil {
		logger.WarnKV(ctx, "Unable to remove previous install backup", "path", old, "error", err)
	}

	return nil
}

func (r *runner) removeBackupTree(path string) error {
	if r.removeBackup != nil {
		return r.removeBackup(path)
	}

	return os.RemoveAll(path)
}

// cleanup removes temporary artifacts and releases the run lock.
// It runs on every outcome, success or failure.
func (r *runner) cleanup(ctx context.Context) {
	r.setStage(ctx, StageCleanup)

	if r.downloadDir != "" {
		if err := os.RemoveAll(r.downloadDir); err != nil {
			logger.WarnKV(ctx, "Unable to remove download directory", "error", err)
		}
	}

	if r.stagingDir != "" {
		if err := os.RemoveAll(r.stagingDir); err != nil {
			logger.WarnKV(ctx, "Unable to remove staging directory", "error", err)
		}
	}

	if r.lockHeld {
		releaseRunLock(ctx)
	}

	logger.Info(ctx, "The updater has been stopped")
}

// setStage reports a pipeline transition and logs it.
func (r *runner) setStage(ctx context.Context, stage Stage) {
	r.reporter.Stage(stage)
	logger.DebugKV(ctx, "Entering stage", "stage", stage.String())
}

func (r *runner) storeRelease(component string, rel *release.Release) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releases[component] = rel
}

func (r *runner) storeArchive(component, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.archives[component] = path
}

// anyNeeded reports whether at least one component must be updated. The
// combined distribution requires both, so one outdated component updates both.
func anyNeeded(decisions []Decision) bool {
	for _, decision := range decisions {
		if decision.Needed {
			return true
		}
	}

	return false
}

// dirIsEmpty reports whether path is an existing directory with no entries.
func dirIsEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false, fmt.Errorf("read nested payload directory: %w", err)
	}

	return len(entries) == 0, nil
}

// assetFilename extracts the file name from an asset download URL.
func assetFilename(assetURL string) string {
	parsed, err := url.Parse(assetURL)
	if err != nil {
		return "asset.bin"
	}

	name := filepath.Base(parsed.Path)
	if name == "." || name == "/" {
		return "asset.bin"
	}

	return name
}
