package release

import (
	"fmt"
	"regexp"
	"strings"
)

// FindAsset returns the download URL of the first asset whose name matches pattern.
// The pattern uses * as a wildcard and must match the whole asset name,
// so "*.7z" selects "app.7z" but not "app.7z.bak".
func FindAsset(assets []Asset, pattern string) (string, error) {
	matcher, err := compilePattern(pattern)
	if err != nil {
		return "", err
	}

	for _, asset := range assets {
		if matcher.MatchString(asset.Name) {
			return asset.BrowserDownloadURL, nil
		}
	}

	return "", fmt.Errorf("pattern %q: %w", pattern, ErrAssetNotFound)
}

// compilePattern translates a wildcard pattern into an anchored regular expression.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	expr := "^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$"

	matcher, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile asset pattern %q: %w", pattern, err)
	}

	return matcher, nil
}
