// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buildsys

// Cargo builds a Rust crate with cargo.
var Cargo = Tool{
	Name:         "cargo",
	Base:         []string{"cargo", "build"},
	OptimizeFlag: "--release",
	ReleaseDir:   "target/release",
	DebugDir:     "target/debug",
}

func init() {
	Register(Cargo)
}
