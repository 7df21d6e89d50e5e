// Package marker persists the installed version of a component as a
// single-line text file under the component's install directory.
//
// Writes are atomic (temp file + rename) so the marker always names a
// version that was fully written.
package marker
