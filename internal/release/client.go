package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"
)

var (
	// ErrBadStatus is returned when the release feed answers with a non-success status.
	ErrBadStatus = errors.New("unexpected http status")
	// ErrAssetNotFound is returned when no release asset matches the required name pattern.
	ErrAssetNotFound = errors.New("no matching release asset")
)

// Asset is a single downloadable file attached to a release.
type Asset struct {
	// Name identifies the asset within the release.
	Name string `json:"name"`
	// BrowserDownloadURL is where the asset contents can be fetched from.
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Release is the latest published version of a repository as reported by the feed.
type Release struct {
	// TagName is the release tag. Compared to local markers by exact string equality.
	TagName string `json:"tag_name"`
	// Assets lists the downloadable files attached to the release.
	Assets []Asset `json:"assets"`
}

// Info pairs a release tag with the download URL of the asset selected for a component.
// Constructed fresh per query, never mutated.
type Info struct {
	// Tag is the release tag.
	Tag string
	// AssetURL is the download URL of the matching asset.
	AssetURL string
}

// Client queries a release feed for the latest published version of a repository.
type Client struct {
	// baseURL is the feed API base, e.g. https://api.github.com.
	baseURL string
	// userAgent identifies the updater; the feed provider requires one.
	userAgent string
	// httpClient executes feed requests with a bounded timeout.
	httpClient *http.Client
}

// NewClient creates a release feed client for the provided API base URL.
func NewClient(baseURL, userAgent string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Latest fetches the newest release of the given repository from the feed.
func (c *Client) Latest(ctx context.Context, owner, repo string) (*Release, error) {
	feedURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed URL: %w", err)
	}

	// Use path.Join to normalize duplicate slashes when composing the URL path.
	feedURL.Path = path.Join(feedURL.Path, "repos", owner, repo, "releases", "latest")
	finalURL := feedURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query release feed: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s, %s: %w", finalURL, response.Status, ErrBadStatus)
	}

	var rel Release
	if err = json.NewDecoder(response.Body).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decode release feed response: %w", err)
	}

	return &rel, nil
}

// Resolve selects the asset matching pattern from the release and pairs it with the tag.
func Resolve(rel *Release, pattern string) (*Info, error) {
	assetURL, err := FindAsset(rel.Assets, pattern)
	if err != nil {
		return nil, err
	}

	return &Info{
		Tag:      rel.TagName,
		AssetURL: assetURL,
	}, nil
}
