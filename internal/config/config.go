// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the project description of a binding wrapper.
//
// A wrapper directory holds dylibpack.toml:
//
//	name = "symbolic"
//	module = "symbolic._lowlevel"
//	readme = "README"
//
//	[native]
//	dir = "../cabi"
//	root = ".."
//	manifest = "../Cargo.toml"
//	build-system = "cargo"
//	library = "symbolic"
//	header = "symbolic.h"
//
//	[snapshot]
//	archive = "rustsrc.zip"
//	subdir = "cabi"
//
// Relative paths are resolved against the wrapper directory. The returned
// Config is built once at startup and carries the build profile, so no other
// package reads the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dario.cat/mergo"
	"github.com/goplus/dylibpack/internal/env"
	"github.com/goplus/dylibpack/pkgs/buildsys"
	"github.com/pelletier/go-toml/v2"
)

// FileName is the project file looked up in the wrapper directory.
const FileName = "dylibpack.toml"

// Native describes the native project.
type Native struct {
	Dir         string `toml:"dir"`
	Root        string `toml:"root"`
	Manifest    string `toml:"manifest"`
	BuildSystem string `toml:"build-system"`
	Library     string `toml:"library"`
	Header      string `toml:"header"`
	HeaderDir   string `toml:"header-dir"`
	Tool        *Tool  `toml:"tool"`
}

// Tool declares a custom build tool instead of a registered build system.
type Tool struct {
	Command      []string `toml:"command"`
	OptimizeFlag string   `toml:"optimize-flag"`
	ReleaseDir   string   `toml:"release-dir"`
	DebugDir     string   `toml:"debug-dir"`
}

// Snapshot configures the source archive.
type Snapshot struct {
	Archive            string   `toml:"archive"`
	Subdir             string   `toml:"subdir"`
	WorktreeAttributes *bool    `toml:"worktree-attributes"`
	Exclude            []string `toml:"exclude"`
}

// Version configures the version fallback.
type Version struct {
	Fallback string `toml:"fallback"`
}

// Env names the build-mode switch.
type Env struct {
	DebugVar   string `toml:"debug-var"`
	DebugValue string `toml:"debug-value"`
}

// Dist configures the source distribution.
type Dist struct {
	Dir     string   `toml:"dir"`
	Summary string   `toml:"summary"`
	Exclude []string `toml:"exclude"`
}

// Binding configures where the generated package is written.
type Binding struct {
	Dir string `toml:"dir"`
}

// Config is the decoded project file plus the startup environment.
type Config struct {
	Name     string   `toml:"name"`
	Module   string   `toml:"module"`
	Readme   string   `toml:"readme"`
	Native   Native   `toml:"native"`
	Snapshot Snapshot `toml:"snapshot"`
	Version  Version  `toml:"version"`
	Env      Env      `toml:"env"`
	Dist     Dist     `toml:"dist"`
	Binding  Binding  `toml:"binding"`

	// Dir is the absolute wrapper directory.
	Dir string `toml:"-"`
	// Profile is the build profile selected at startup.
	Profile buildsys.Profile `toml:"-"`
}

func defaults() Config {
	attrs := true
	return Config{
		Readme: "README",
		Native: Native{
			Dir:         "../native",
			Root:        "..",
			Manifest:    "../Cargo.toml",
			BuildSystem: "cargo",
			HeaderDir:   "include",
		},
		Snapshot: Snapshot{
			Archive:            "nativesrc.zip",
			Subdir:             "native",
			WorktreeAttributes: &attrs,
		},
		Version: Version{Fallback: "version.txt"},
		Env:     Env{DebugVar: env.DefaultDebugVar, DebugValue: env.DefaultDebugValue},
		Dist:    Dist{Dir: "dist"},
		Binding: Binding{Dir: "."},
	}
}

// Error reports a problem with a project file.
type Error struct {
	filePath string
	err      error  // short, single-line error
	str      string // full, multi-line error string, or err string, if none
}

// Error returns a short error message.
func (e *Error) Error() string {
	return e.filePath + ": " + e.err.Error()
}

// String returns the full multi-line error string.
func (e *Error) String() string {
	if e.str != "" {
		return "Error in file " + strconv.Quote(e.filePath) + ":\n" + e.str
	}
	return e.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// Load reads dir/dylibpack.toml, loads dir/.env and selects the build profile
// from the process environment.
func Load(dir string) (*Config, error) {
	if err := env.LoadDotEnv(dir); err != nil {
		return nil, err
	}
	return LoadWith(dir, os.LookupEnv)
}

// LoadWith is Load with an explicit environment and without .env handling.
func LoadWith(dir string, lookup env.Lookup) (_ *Config, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName)
	defer func() {
		if err != nil {
			if tErr := (&toml.DecodeError{}); errors.As(err, &tErr) {
				err = &Error{filePath: path, err: err, str: tErr.String()}
			} else if tErr := (&toml.StrictMissingError{}); errors.As(err, &tErr) {
				err = &Error{filePath: path, err: err, str: tErr.String()}
			} else {
				err = &Error{filePath: path, err: err}
			}
		}
	}()

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c := &Config{}
	err = toml.NewDecoder(bytes.NewReader(file)).
		DisallowUnknownFields().
		Decode(c)
	if err != nil {
		return nil, err
	}
	def := defaults()
	if err := mergo.Merge(c, def, mergo.WithoutDereference); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	c.Dir = dir
	c.Profile = env.Profile(lookup, c.Env.DebugVar, c.Env.DebugValue)
	return c, nil
}

func (c *Config) validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.Module == "" {
		return errors.New("module is required")
	}
	if c.Native.Library == "" {
		return errors.New("native.library is required")
	}
	if c.Native.Header == "" {
		return errors.New("native.header is required")
	}
	if c.Native.Tool != nil {
		return c.tool().Validate()
	}
	if _, ok := buildsys.Lookup(c.Native.BuildSystem); !ok {
		return fmt.Errorf("native.build-system: unknown build system %q (known: %v)", c.Native.BuildSystem, buildsys.Names())
	}
	return nil
}

// Path resolves p against the wrapper directory.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, filepath.FromSlash(p))
}

// Tool returns the build tool of the native project.
func (c *Config) Tool() buildsys.Tool {
	return c.tool()
}

func (c *Config) tool() buildsys.Tool {
	if t := c.Native.Tool; t != nil {
		return buildsys.Tool{
			Name:         "custom",
			Base:         t.Command,
			OptimizeFlag: t.OptimizeFlag,
			ReleaseDir:   t.ReleaseDir,
			DebugDir:     t.DebugDir,
		}
	}
	t, _ := buildsys.Lookup(c.Native.BuildSystem)
	return t
}

// ArchivePath is the absolute path of the source snapshot.
func (c *Config) ArchivePath() string { return c.Path(c.Snapshot.Archive) }

// NativeDir is the absolute path of the live native source tree.
func (c *Config) NativeDir() string { return c.Path(c.Native.Dir) }

// NativeRoot is the absolute path the snapshot is taken from.
func (c *Config) NativeRoot() string { return c.Path(c.Native.Root) }

// ManifestPath is the absolute path of the native manifest.
func (c *Config) ManifestPath() string { return c.Path(c.Native.Manifest) }

// FallbackPath is the absolute path of the version fallback file.
func (c *Config) FallbackPath() string { return c.Path(c.Version.Fallback) }

// ReadmePath is the absolute path of the README.
func (c *Config) ReadmePath() string { return c.Path(c.Readme) }

// DistDir is the absolute output directory of source distributions.
func (c *Config) DistDir() string { return c.Path(c.Dist.Dir) }

// BindingDir is the absolute directory the generated package is written to.
func (c *Config) BindingDir() string { return c.Path(c.Binding.Dir) }

// LockPath is the lock file serializing builds in the wrapper directory.
func (c *Config) LockPath() string { return c.Path(".dylibpack.lock") }

// WorktreeAttributes reports whether the snapshot honors working-tree attribute files.
func (c *Config) WorktreeAttributes() bool {
	return c.Snapshot.WorktreeAttributes == nil || *c.Snapshot.WorktreeAttributes
}
