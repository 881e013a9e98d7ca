// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package version determines the single version string shared by the
// wrapper and the native project.
package version

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/semver"
)

// ErrUnresolvable is returned when neither the manifest nor the fallback
// file yields a version.
var ErrUnresolvable = errors.New("version unresolvable")

// Resolver reads the version from the native manifest, falling back to a
// plaintext file written by a previous source distribution.
type Resolver struct {
	Manifest string // native project manifest, e.g. ../Cargo.toml
	Fallback string // single-line fallback file, e.g. version.txt
}

// manifest covers the locations a Cargo-style manifest declares its version in.
type manifest struct {
	Version string `toml:"version"`
	Package struct {
		Version any `toml:"version"`
	} `toml:"package"`
	Workspace struct {
		Package struct {
			Version string `toml:"version"`
		} `toml:"package"`
	} `toml:"workspace"`
}

// Resolve returns the version. A manifest, when present, always wins over
// the fallback file.
func (r *Resolver) Resolve() (string, error) {
	data, err := os.ReadFile(r.Manifest)
	switch {
	case err == nil:
		return fromManifest(r.Manifest, data)
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("%w: %w", ErrUnresolvable, err)
	}
	return r.fromFallback()
}

func fromManifest(path string, data []byte) (string, error) {
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("%w: parse %s: %w", ErrUnresolvable, path, err)
	}
	// version.workspace = true inherits the workspace version.
	pkgVersion, _ := m.Package.Version.(string)
	for _, v := range []string{pkgVersion, m.Workspace.Package.Version, m.Version} {
		if v != "" {
			return validate(path, v)
		}
	}
	return "", fmt.Errorf("%w: no version declared in %s", ErrUnresolvable, path)
}

func (r *Resolver) fromFallback() (string, error) {
	data, err := os.ReadFile(r.Fallback)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnresolvable, err)
	}
	line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
	v := strings.TrimSpace(string(line))
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrUnresolvable, r.Fallback)
	}
	return validate(r.Fallback, v)
}

func validate(source, v string) (string, error) {
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return "", fmt.Errorf("%w: %s declares %q, not a semantic version", ErrUnresolvable, source, v)
	}
	return v, nil
}

// Write persists v to the fallback file, trimmed and newline-terminated.
func (r *Resolver) Write(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return fmt.Errorf("%w: refusing to write an empty version", ErrUnresolvable)
	}
	if err := os.MkdirAll(filepath.Dir(r.Fallback), 0o755); err != nil {
		return err
	}
	return os.WriteFile(r.Fallback, []byte(v+"\n"), 0o644)
}
