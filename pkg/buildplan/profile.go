package buildplan

import "github.com/shmocker/wharf/internal/wharferrors"

// Profile selects which Cargo invocation set ends up in the build plan:
// binaries or tests, at debug or release optimization level. It is the
// frontend's `mode` bridge option.
type Profile int

const (
	ProfileReleaseBinaries Profile = iota
	ProfileDebugBinaries
	ProfileReleaseTests
	ProfileDebugTests
)

// ParseProfile parses the frontend's `mode` option value. Binaries at
// release level is the default when the option is absent.
func ParseProfile(s string) (Profile, error) {
	switch s {
	case "", "release-binaries":
		return ProfileReleaseBinaries, nil
	case "debug-binaries":
		return ProfileDebugBinaries, nil
	case "release-tests":
		return ProfileReleaseTests, nil
	case "debug-tests":
		return ProfileDebugTests, nil
	default:
		return 0, wharferrors.Newf(wharferrors.ConfigError, "unknown mode %q", s)
	}
}

// IsRelease reports whether this profile builds with optimizations.
func (p Profile) IsRelease() bool {
	return p == ProfileReleaseBinaries || p == ProfileReleaseTests
}

// IsTests reports whether this profile builds the test binaries rather
// than the package's regular binary targets.
func (p Profile) IsTests() bool {
	return p == ProfileReleaseTests || p == ProfileDebugTests
}
