// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package artifact locates the outputs of a completed native build.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/goplus/dylibpack/pkgs/buildsys"
)

// ErrNotFound is returned when an expected build output does not exist.
var ErrNotFound = errors.New("artifact not found")

// Handle refers to the outputs of one build.
// OutputDir and HeaderDir are relative to SourceDir.
type Handle struct {
	Profile   buildsys.Profile
	SourceDir string
	OutputDir string
	HeaderDir string

	// GOOS selects the dynamic library naming scheme. Empty means runtime.GOOS.
	GOOS string
}

// NewHandle returns the handle of a build of tool with profile p in srcDir.
func NewHandle(tool buildsys.Tool, p buildsys.Profile, srcDir, headerDir string) *Handle {
	return &Handle{
		Profile:   p,
		SourceDir: srcDir,
		OutputDir: tool.OutputDir(p),
		HeaderDir: headerDir,
	}
}

// LibDir returns the directory holding the built libraries.
func (h *Handle) LibDir() string {
	return filepath.Join(h.SourceDir, filepath.FromSlash(h.OutputDir))
}

// IncludeDir returns the directory holding the exported headers.
func (h *Handle) IncludeDir() string {
	return filepath.Join(h.SourceDir, filepath.FromSlash(h.HeaderDir))
}

// FindDylib returns the path of the dynamic library for the logical name lib.
func (h *Handle) FindDylib(lib string) (string, error) {
	file := DylibName(h.goos(), lib)
	return find(filepath.Join(h.LibDir(), file), "dynamic library "+lib)
}

// FindHeader returns the path of the header file name.
func (h *Handle) FindHeader(name string) (string, error) {
	return find(filepath.Join(h.IncludeDir(), filepath.FromSlash(name)), "header "+name)
}

func (h *Handle) goos() string {
	if h.GOOS != "" {
		return h.GOOS
	}
	return runtime.GOOS
}

func find(path, what string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s (looked for %s)", ErrNotFound, what, path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s (%s is a directory)", ErrNotFound, what, path)
	}
	return path, nil
}

// DylibName returns the file name a native toolchain gives the dynamic
// library lib on goos.
func DylibName(goos, lib string) string {
	switch goos {
	case "windows":
		return lib + ".dll"
	case "darwin", "ios":
		return "lib" + lib + ".dylib"
	default:
		return "lib" + lib + ".so"
	}
}
