// Package journal maintains the updater's two append-only on-disk logs:
// a timestamped action log and an installed-versions record log.
package journal
