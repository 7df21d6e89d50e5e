// Package archive installs downloaded release archives: zip archives are
// extracted natively, 7z archives by invoking the bundled external extractor
// as a subprocess with its output captured for the log.
package archive
