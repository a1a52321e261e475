// Package buildconfig exposes build metadata injected with -ldflags, e.g.
//
//	-X github.com/Harshitk-cp/healthmem/internal/buildconfig.version=v1.2.0
package buildconfig

import "runtime"

const serviceName = "healthmem"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is reported by the health endpoint. build_date is omitted
// when it was not injected.
func VersionInfo() map[string]string {
	info := map[string]string{
		"service":    serviceName,
		"version":    version,
		"commit":     commit,
		"go_version": runtime.Version(),
	}
	if buildDate != "" {
		info["build_date"] = buildDate
	}
	return info
}
