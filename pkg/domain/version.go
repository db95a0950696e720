package domain

import "regexp"

var versionPattern = regexp.MustCompile(`^\d+\.\d+(\.\d+)?$`)

// ValidVersion reports whether s is a major.minor or major.minor.patch
// policy version.
func ValidVersion(s string) bool {
	return versionPattern.MatchString(s)
}
