// Package download streams release assets to local files in fixed-size
// chunks, reporting byte-level progress after every chunk.
//
// Partial files never survive a failed or canceled download.
package download
