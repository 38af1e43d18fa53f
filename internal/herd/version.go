package herd

import (
	"github.com/Masterminds/semver/v3"
)

// SupportedAPIVersions is the range of server API versions this client speaks.
const SupportedAPIVersions = ">= 1.0.0, < 2.0.0"

var apiConstraint *semver.Constraints

func init() {
	var err error
	apiConstraint, err = semver.NewConstraint(SupportedAPIVersions)
	if err != nil {
		panic(err)
	}
}

// IsAPICompatible reports whether the server's API version is supported. Invalid
// version strings are not.
func IsAPICompatible(version string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return apiConstraint.Check(v)
}
