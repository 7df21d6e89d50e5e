package release

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFindAsset_Wildcards verifies wildcard selection among multiple assets.
func TestFindAsset_Wildcards(t *testing.T) {
	t.Parallel()

	assets := []Asset{
		{Name: "app.zip", BrowserDownloadURL: "https://dl.local/app.zip"},
		{Name: "app-portable.7z", BrowserDownloadURL: "https://dl.local/app-portable.7z"},
	}

	url, err := FindAsset(assets, "*.7z")
	require.NoError(t, err)
	require.Equal(t, "https://dl.local/app-portable.7z", url)

	url, err = FindAsset(assets, "*.zip")
	require.NoError(t, err)
	require.Equal(t, "https://dl.local/app.zip", url)
}

// TestFindAsset_Anchored ensures the pattern matches the whole name,
// not just a substring of it.
func TestFindAsset_Anchored(t *testing.T) {
	t.Parallel()

	assets := []Asset{
		{Name: "app.7z.bak", BrowserDownloadURL: "https://dl.local/app.7z.bak"},
		{Name: "notes-about-app.zip.txt", BrowserDownloadURL: "https://dl.local/notes.txt"},
	}

	_, err := FindAsset(assets, "*.7z")
	require.ErrorIs(t, err, ErrAssetNotFound)

	_, err = FindAsset(assets, "*.zip")
	require.ErrorIs(t, err, ErrAssetNotFound)
}

// TestFindAsset_LiteralDots ensures dots in patterns are not regexp metacharacters.
func TestFindAsset_LiteralDots(t *testing.T) {
	t.Parallel()

	assets := []Asset{
		{Name: "appXzip", BrowserDownloadURL: "https://dl.local/appXzip"},
	}

	_, err := FindAsset(assets, "app.zip")
	require.ErrorIs(t, err, ErrAssetNotFound)
}

// TestFindAsset_NoAssets reports ErrAssetNotFound on an empty list.
func TestFindAsset_NoAssets(t *testing.T) {
	t.Parallel()

	_, err := FindAsset(nil, "*.7z")
	require.ErrorIs(t, err, ErrAssetNotFound)
}

// TestFindAsset_InfixWildcard checks wildcards in the middle of a pattern.
func TestFindAsset_InfixWildcard(t *testing.T) {
	t.Parallel()

	assets := []Asset{
		{Name: "tandem-desktop-v2.4.0-win64.zip", BrowserDownloadURL: "https://dl.local/d.zip"},
	}

	url, err := FindAsset(assets, "tandem-desktop-*-win64.zip")
	require.NoError(t, err)
	require.Equal(t, "https://dl.local/d.zip", url)
}
