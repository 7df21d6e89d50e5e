package updater

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/oshokin/tandem-updater/internal/config"
	"github.com/oshokin/tandem-updater/internal/release"
	"github.com/oshokin/tandem-updater/internal/repository/marker"
)

const (
	// ComponentPortable is the outer bundle whose install root holds everything.
	ComponentPortable = "portable"
	// ComponentDesktop is the app nested inside the portable install root.
	ComponentDesktop = "desktop"

	// NestedPayloadDir is the fixed directory under the portable install root
	// where the desktop payload lives. The nesting is a structural invariant
	// of the combined distribution, not configuration.
	NestedPayloadDir = "desktop"
)

// Task statically describes one component's update pipeline.
type Task struct {
	// Component identifies the component ("portable" or "desktop").
	Component string
	// Owner is the feed repository owner.
	Owner string
	// Repo is the feed repository name.
	Repo string
	// AssetPattern selects the release asset by whole-name wildcard match.
	AssetPattern string
	// MarkerPath is the version marker location under the component's install directory.
	MarkerPath string
}

// tasksFromConfig builds the two component tasks. The portable marker sits at
// the install root, the desktop marker inside the nested payload directory.
func tasksFromConfig(cfg *config.Config) []Task {
	installDir := filepath.Clean(cfg.InstallDir)

	return []Task{
		{
			Component:    ComponentPortable,
			Owner:        cfg.Portable.Owner,
			Repo:         cfg.Portable.Repo,
			AssetPattern: cfg.Portable.AssetPattern,
			MarkerPath:   filepath.Join(installDir, marker.Filename),
		},
		{
			Component:    ComponentDesktop,
			Owner:        cfg.Desktop.Owner,
			Repo:         cfg.Desktop.Repo,
			AssetPattern: cfg.Desktop.AssetPattern,
			MarkerPath:   filepath.Join(installDir, NestedPayloadDir, marker.Filename),
		},
	}
}

// Decision is the outcome of comparing one component's marker to the feed.
type Decision struct {
	// Component identifies the component the decision is about.
	Component string
	// Needed reports whether the component must be updated.
	Needed bool
	// Current is the locally installed version; empty when no marker exists.
	Current string
	// Latest is the newest tag published on the feed.
	Latest string
}

// releaseSource is the slice of the feed client the coordinator depends on.
type releaseSource interface {
	Latest(ctx context.Context, owner, repo string) (*release.Release, error)
}

// decide compares the persisted marker against the latest tag using exact
// string equality. A missing marker always means an update is needed.
func decide(ctx context.Context, task Task, latestTag string) (Decision, error) {
	decision := Decision{
		Component: task.Component,
		Latest:    latestTag,
	}

	current, err := marker.NewFileStore(task.MarkerPath).Load(ctx)
	if err != nil {
		if errors.Is(err, marker.ErrNotFound) {
			decision.Needed = true
			return decision, nil
		}

		return decision, err
	}

	decision.Current = current
	decision.Needed = current != latestTag

	return decision, nil
}
