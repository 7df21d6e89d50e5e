// Package config defines updater settings and provides helpers to load,
// validate and save them in YAML format.
//
// The Config type holds the release feed base URL, the install root of the
// portable bundle and the feed coordinates of both components.
package config
