// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sdist produces self-sufficient source distributions: each one
// carries a snapshot of the native source and a frozen version string.
package sdist

import (
	"context"
	"fmt"

	"github.com/goplus/dylibpack/internal/snapshot"
	"github.com/qiniu/x/log"
)

// VersionWriter persists the resolved version for builds without a manifest.
type VersionWriter interface {
	Write(v string) error
}

// PackageFunc is the standard "build a source distribution" step. It returns
// the path of the produced file.
type PackageFunc func(ctx context.Context, version string) (string, error)

// Hook wraps the packaging step with snapshotting and version freezing.
type Hook struct {
	Snapshotter snapshot.Snapshotter
	Versions    VersionWriter
	Root        string // native repository root the snapshot is taken from
	Archive     string // where the snapshot is written
	Package     PackageFunc
}

// Run snapshots the native tree, writes the version fallback, then
// delegates to the packaging step, always in that order. A snapshot failure
// aborts: a distribution without its native source is invalid.
func (h *Hook) Run(ctx context.Context, version string) (string, error) {
	log.Infof("snapshotting %s into %s", h.Root, h.Archive)
	if err := h.Snapshotter.Snapshot(ctx, h.Root, h.Archive); err != nil {
		return "", fmt.Errorf("failed to snapshot native source: %w", err)
	}
	if err := h.Versions.Write(version); err != nil {
		return "", fmt.Errorf("failed to write version: %w", err)
	}
	return h.Package(ctx, version)
}
