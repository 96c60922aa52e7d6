// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package version carries build metadata stamped in via ldflags.
package version

var (
	// Version is the release tag, or the fallback for untagged builds.
	Version = "v0.3.0-dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
