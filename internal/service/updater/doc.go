// Package updater coordinates the two-component update workflow of the
// tandem distribution.
//
// A run compares both local version markers against the release feed,
// downloads the matching assets, extracts the portable bundle into a staging
// directory, replaces the nested desktop payload, and atomically swaps the
// staging tree over the live install root. Only one run may be active at a
// time; progress is surfaced through the Reporter interface so any front end
// can render it.
package updater
