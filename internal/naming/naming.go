// Package naming derives the runtime identifiers svcrunner gives to volumes and
// helper containers. Everything here is pure: the same inputs always produce the
// same names, so a service can be re-resolved at any time and find its volumes.
package naming

import (
	"regexp"
	"strings"
)

// Prefix marks every runtime resource owned by svcrunner.
const Prefix = "svcrunner-"

var nonAlphaNum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// AlphaNumeric strips every character outside [a-zA-Z0-9]. Case is preserved.
func AlphaNumeric(s string) string {
	return nonAlphaNum.ReplaceAllString(s, "")
}

// VolumeName returns the runtime volume name for a mount path of a service.
//
//	VolumeName("blog", "/data") == "svcrunner-blogdata"
func VolumeName(serviceName, mountPath string) string {
	return Prefix + serviceName + AlphaNumeric(mountPath)
}

// ContainerName returns the name used for a disposable helper container that
// svcrunner runs on behalf of a service, e.g. the volume ownership fixer.
func ContainerName(serviceName, role string) string {
	return Prefix + serviceName + "-" + strings.ToLower(AlphaNumeric(role))
}
