// Package outdir guards the output directory a page is saved into.
package outdir

import (
	"fmt"
	"slices"
)

// restrictedPaths lists system roots that must never receive downloads.
// Matching is exact string equality on the directory as given by the caller:
// "/etc/" or "/usr/local" are not caught.
var restrictedPaths = []string{
	"/sys",
	"/dev",
	"/proc",
	"/etc",
	"/bin",
	"/sbin",
	"/lib",
	"/usr",
	"/boot",
}

// RestrictedPathError reports an output directory on the denylist.
type RestrictedPathError struct {
	Path string
}

func (e *RestrictedPathError) Error() string {
	return fmt.Sprintf("refusing to write to restricted directory: %s", e.Path)
}

// SanitizeOutputDir returns dir unchanged unless it is a restricted system path.
func SanitizeOutputDir(dir string) (string, error) {
	if slices.Contains(restrictedPaths, dir) {
		return "", &RestrictedPathError{Path: dir}
	}
	return dir, nil
}

// Restricted returns a copy of the denylist.
func Restricted() []string {
	return slices.Clone(restrictedPaths)
}
