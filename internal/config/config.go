package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/tandem-updater/internal/version"
)

// Task describes the release feed coordinates of one updatable component.
type Task struct {
	// Owner is the feed repository owner.
	Owner string `yaml:"owner"`
	// Repo is the feed repository name.
	Repo string `yaml:"repo"`
	// AssetPattern selects the downloadable asset by name, with * as a wildcard.
	// The pattern matches the whole asset name.
	AssetPattern string `yaml:"asset_pattern"`
}

// Config holds settings shared by the tandem-updater binaries.
type Config struct {
	// FeedURL is the base URL of the release feed API.
	FeedURL string `yaml:"feed_url"`
	// UserAgent identifies the updater to the release feed provider.
	UserAgent string `yaml:"user_agent"`
	// Timeout bounds release feed requests. Downloads are bounded by the run context instead.
	Timeout time.Duration `yaml:"timeout"`
	// InstallDir is the portable bundle's install root.
	// The desktop payload lives in a fixed subdirectory of it.
	InstallDir string `yaml:"install_dir"`
	// ExtractorPath is the location of the bundled 7z extractor binary.
	ExtractorPath string `yaml:"extractor_path"`
	// ActionLogFile is the append-only timestamped action log.
	ActionLogFile string `yaml:"action_log"`
	// InstallLogFile is the append-only "component: version" record log.
	InstallLogFile string `yaml:"install_log"`
	// Portable configures the outer bundle component.
	Portable Task `yaml:"portable"`
	// Desktop configures the nested desktop component.
	Desktop Task `yaml:"desktop"`
}

const (
	// DefaultConfigFilename is the default filename for updater settings.
	DefaultConfigFilename = "tandem-updater-settings.yaml"

	// DefaultFeedURL is the release feed API base used when none is configured.
	DefaultFeedURL = "https://api.github.com"

	// DefaultTimeout is the default duration for release feed requests.
	DefaultTimeout = 30 * time.Second

	// DefaultActionLogFilename records every updater action with a timestamp.
	DefaultActionLogFilename = "tandem-updater-actions.log"

	// DefaultInstallLogFilename records installed component versions.
	DefaultInstallLogFilename = "tandem-updater-installed.log"

	// DefaultPortablePattern selects the portable bundle archive by default.
	DefaultPortablePattern = "*.7z"

	// DefaultDesktopPattern selects the desktop app archive by default.
	DefaultDesktopPattern = "*.zip"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInstallDirRequired is returned when the install root is missing.
	errInstallDirRequired = errors.New("install directory must be provided")
	// errTaskIncomplete is returned when a component lacks feed coordinates.
	errTaskIncomplete = errors.New("component owner and repo must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.InstallDir == "" {
		return errInstallDirRequired
	}

	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}

	if _, err := url.ParseRequestURI(cfg.FeedURL); err != nil {
		return fmt.Errorf("invalid feed URL: %w", err)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = "tandem-updater/" + version.Short()
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	logDir := filepath.Dir(filepath.Clean(cfg.InstallDir))
	if cfg.ActionLogFile == "" {
		cfg.ActionLogFile = filepath.Join(logDir, DefaultActionLogFilename)
	}

	if cfg.InstallLogFile == "" {
		cfg.InstallLogFile = filepath.Join(logDir, DefaultInstallLogFilename)
	}

	if cfg.Portable.AssetPattern == "" {
		cfg.Portable.AssetPattern = DefaultPortablePattern
	}

	if cfg.Desktop.AssetPattern == "" {
		cfg.Desktop.AssetPattern = DefaultDesktopPattern
	}

	for _, task := range []Task{cfg.Portable, cfg.Desktop} {
		if task.Owner == "" || task.Repo == "" {
			return errTaskIncomplete
		}
	}

	return nil
}
