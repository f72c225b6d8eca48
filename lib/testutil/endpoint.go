// Copyright 2026 The SDMS Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a directory directly under /tmp for Unix domain
// sockets, removed when the test completes. t.TempDir() paths can
// exceed the 108-byte sun_path limit.
func SocketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "sdms-")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// Endpoint returns an unused endpoint of the given scheme ("inproc"
// or "ipc") for the current test.
func Endpoint(t *testing.T, scheme string) string {
	t.Helper()
	switch scheme {
	case "inproc":
		return "inproc://" + UniqueID(t.Name())
	case "ipc":
		return "ipc://" + filepath.Join(SocketDir(t), "s.sock")
	}
	t.Fatalf("testutil.Endpoint: unsupported scheme %q", scheme)
	return ""
}
