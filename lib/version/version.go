// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"os"
	"runtime"
)

// Set via -ldflags at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Wire API version. A client may talk to any server with the same
// major version.
const (
	APIMajor uint32 = 1
	APIMinor uint32 = 0
	APIPatch uint32 = 0
)

// Info returns "VERSION (COMMIT[-dirty], BUILDTIME)".
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns Info followed by the API, Go and platform versions.
func Full() string {
	return fmt.Sprintf("%s\n  API: %s\n  Go: %s\n  Platform: %s/%s",
		Info(), API(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns the release version.
func Short() string {
	return Version
}

// API returns the wire API version as "MAJOR.MINOR.PATCH".
func API() string {
	return fmt.Sprintf("%d.%d.%d", APIMajor, APIMinor, APIPatch)
}

// Print writes the --version banner for name to stdout.
func Print(name string) {
	Fprint(os.Stdout, name)
}

// Fprint writes "NAME FULL" to w.
func Fprint(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n", name, Full())
}
