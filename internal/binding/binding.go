// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binding declares foreign modules bound to a native build.
package binding

import (
	"strings"

	"github.com/goplus/dylibpack/internal/artifact"
	"github.com/goplus/dylibpack/pkgs/buildsys"
)

// LoadFlags are the dynamic-loading flags requested for a module.
type LoadFlags uint8

const (
	// RTLDNow resolves every symbol when the library is loaded.
	RTLDNow LoadFlags = 1 << iota
	// RTLDNoDelete keeps the library mapped for the lifetime of the process.
	RTLDNoDelete
)

// DefaultFlags is what Register requests.
const DefaultFlags = RTLDNow | RTLDNoDelete

func (f LoadFlags) String() string {
	var names []string
	if f&RTLDNow != 0 {
		names = append(names, "NOW")
	}
	if f&RTLDNoDelete != 0 {
		names = append(names, "NODELETE")
	}
	return strings.Join(names, "|")
}

// LinkerFlags returns the linker options that request f for a binary linked
// against the library on goos. Only options cgo accepts in #cgo LDFLAGS are
// used; residency is requested at run time, see DlopenMode.
func (f LoadFlags) LinkerFlags(goos string) []string {
	switch goos {
	case "windows", "darwin", "ios":
		// PE binds eagerly; cgo rejects -bind_at_load for Mach-O.
		return nil
	}
	if f&RTLDNow != 0 {
		return []string{"-Wl,-z,now"}
	}
	return nil
}

// DlopenMode returns the C mode expression that reopens the already loaded
// library with f applied, or "" when f asks for nothing a reopen can add.
func (f LoadFlags) DlopenMode() string {
	if f&RTLDNoDelete == 0 {
		return ""
	}
	mode := []string{"RTLD_NOLOAD", "RTLD_NODELETE"}
	if f&RTLDNow != 0 {
		mode = append(mode, "RTLD_NOW")
	} else {
		mode = append(mode, "RTLD_LAZY")
	}
	return strings.Join(mode, " | ")
}

// Resolver lazily produces an artifact path.
type Resolver func() (string, error)

// Descriptor declares a foreign module. It is inert until something
// resolves its artifacts.
type Descriptor struct {
	Module     string
	Lib        string // logical library name, e.g. "symbolic"
	Header     string // header file name, e.g. "symbolic.h"
	Dylib      Resolver
	HeaderFile Resolver
	Flags      LoadFlags
	Profile    buildsys.Profile
}

// Register declares module bound to the outputs behind h. No lookup happens
// until Dylib or HeaderFile is called.
func Register(module string, h *artifact.Handle, lib, header string) Descriptor {
	return Descriptor{
		Module: module,
		Lib:    lib,
		Header: header,
		Dylib: func() (string, error) {
			return h.FindDylib(lib)
		},
		HeaderFile: func() (string, error) {
			return h.FindHeader(header)
		},
		Flags:   DefaultFlags,
		Profile: h.Profile,
	}
}
