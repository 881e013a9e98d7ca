// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockedfile provides an inter-process mutex backed by a lock file.
package lockedfile

import (
	"fmt"
	"os"
)

// Mutex is an exclusive lock on a file path. The file is created if needed
// and never removed, so every process agrees on the same inode.
type Mutex struct {
	path string
}

// MutexAt returns a Mutex for the file at path.
func MutexAt(path string) *Mutex {
	if path == "" {
		panic("lockedfile.MutexAt: path must be non-empty")
	}
	return &Mutex{path: path}
}

func (mu *Mutex) String() string {
	return fmt.Sprintf("lockedfile.Mutex(%s)", mu.path)
}

// Lock blocks until the lock is held and returns the function that releases it.
func (mu *Mutex) Lock() (func(), error) {
	f, err := os.OpenFile(mu.path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	if err := lock(f); err != nil {
		f.Close()
		return nil, &os.PathError{Op: "lock", Path: mu.path, Err: err}
	}
	return func() {
		unlock(f)
		f.Close()
	}, nil
}
