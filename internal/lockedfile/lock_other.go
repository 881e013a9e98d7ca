// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !(darwin || dragonfly || freebsd || linux || netbsd || openbsd || windows)

package lockedfile

import (
	"errors"
	"os"
)

func lock(f *os.File) error {
	return errors.ErrUnsupported
}

func unlock(f *os.File) error {
	return errors.ErrUnsupported
}
