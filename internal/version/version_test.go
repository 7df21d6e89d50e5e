package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFull ensures the full version string contains every embedded field.
func TestFull(t *testing.T) {
	t.Parallel()

	full := Full()
	require.Contains(t, full, Version)
	require.Contains(t, full, Commit)
	require.Contains(t, full, BuildTime)
}

// TestShort ensures Short returns the bare semantic version.
func TestShort(t *testing.T) {
	t.Parallel()

	require.Equal(t, Version, Short())
}
