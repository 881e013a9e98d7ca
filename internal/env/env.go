// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package env reads the process environment once at startup.
package env

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goplus/dylibpack/pkgs/buildsys"
	"github.com/joho/godotenv"
)

const (
	DefaultDebugVar   = "DYLIBPACK_DEBUG"
	DefaultDebugValue = "1"
)

// Lookup reads a single variable. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// LoadDotEnv loads dir/.env into the process environment.
// Variables that are already set win over the file. A missing file is not an error.
func LoadDotEnv(dir string) error {
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Profile selects the build profile from the debug switch.
// Only an exact match of sentinel selects Debug; any other value, including
// an unset variable, selects Optimized.
func Profile(lookup Lookup, key, sentinel string) buildsys.Profile {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if key == "" {
		key = DefaultDebugVar
	}
	if sentinel == "" {
		sentinel = DefaultDebugValue
	}
	if v, ok := lookup(key); ok && v == sentinel {
		return buildsys.Debug
	}
	return buildsys.Optimized
}
