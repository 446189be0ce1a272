/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package libinfo reports the version of aithrottle baked into the running binary.
package libinfo

import (
	"regexp"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ModuleName is the import path of the aithrottle module.
const ModuleName = "github.com/pulsefit/aithrottle"

// PrometheusVersionLabel is the const label that carries the version in metrics.
const PrometheusVersionLabel = "aithrottle_version"

const unknownVersion = "v0.0.0"

// Version may be set at link time: -ldflags "-X github.com/pulsefit/aithrottle/internal/libinfo.Version=v1.2.3".
var Version string

var (
	version     string
	versionOnce sync.Once
)

// GetVersion returns the linked Version, or the module version from the build info,
// or "v0.0.0" if neither is known.
func GetVersion() string {
	versionOnce.Do(func() {
		version = Version
		if version == "" {
			if buildInfo, ok := debug.ReadBuildInfo(); ok {
				version = extractVersion(buildInfo, ModuleName)
			}
		}
		if version == "" {
			version = unknownVersion
		}
	})
	return version
}

// UserAgent returns "aithrottle/<version>".
func UserAgent() string {
	return "aithrottle/" + GetVersion()
}

// AddPrometheusVersionLabel returns a copy of labels with the version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = GetVersion()
	return labelsCopy
}

// extractVersion looks for the module (optionally with a /vN suffix) first as the main module
// and then among the dependencies. "(devel)" means a local build and is treated as unknown.
func extractVersion(buildInfo *debug.BuildInfo, modName string) string {
	if buildInfo == nil {
		return ""
	}
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(modName) + `(/v[0-9]+)?$`)
	if re.MatchString(buildInfo.Main.Path) && buildInfo.Main.Version != "(devel)" {
		return buildInfo.Main.Version
	}
	for _, dep := range buildInfo.Deps {
		if re.MatchString(dep.Path) {
			return dep.Version
		}
	}
	return ""
}
