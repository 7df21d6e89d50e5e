// Package release queries a GitHub-style release feed for the latest published
// version of a repository and selects the downloadable asset matching a
// component's name pattern.
//
// Tags are opaque strings; the updater compares them to local markers by
// exact equality only.
package release
