// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buildsys

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Profile selects between an optimized and a debug native build.
type Profile int

const (
	Optimized Profile = iota
	Debug
)

func (p Profile) String() string {
	if p == Debug {
		return "debug"
	}
	return "release"
}

// Spec is a single build request: the argument list and the directory it runs in.
type Spec struct {
	Command []string
	Dir     string
}

// Tool describes how a native build tool is driven.
//
// The command flag and the output directory of a profile are both derived
// from the same Tool, so an optimized build is always searched for under
// ReleaseDir and a debug build under DebugDir.
type Tool struct {
	Name         string
	Base         []string
	OptimizeFlag string
	ReleaseDir   string
	DebugDir     string
}

// Command returns the argument list for p.
func (t Tool) Command(p Profile) []string {
	cmd := slices.Clone(t.Base)
	if p == Optimized && t.OptimizeFlag != "" {
		cmd = append(cmd, t.OptimizeFlag)
	}
	return cmd
}

// OutputDir returns the output directory of p, relative to the source dir.
func (t Tool) OutputDir(p Profile) string {
	if p == Debug {
		return t.DebugDir
	}
	return t.ReleaseDir
}

// Spec builds the request for running t with profile p in dir.
func (t Tool) Spec(p Profile, dir string) Spec {
	return Spec{Command: t.Command(p), Dir: dir}
}

// Validate reports whether t can be run at all.
func (t Tool) Validate() error {
	if len(t.Base) == 0 {
		return fmt.Errorf("buildsys: tool %q has no command", t.Name)
	}
	if t.ReleaseDir == "" || t.DebugDir == "" {
		return fmt.Errorf("buildsys: tool %q needs both release and debug output dirs", t.Name)
	}
	if t.ReleaseDir == t.DebugDir {
		return fmt.Errorf("buildsys: tool %q uses %q for both profiles", t.Name, t.ReleaseDir)
	}
	return nil
}

var (
	mu    sync.RWMutex
	tools = map[string]Tool{}
)

// Register makes a tool available by name. It panics on duplicates.
func Register(t Tool) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := tools[t.Name]; dup {
		panic("buildsys: Register called twice for tool " + t.Name)
	}
	tools[t.Name] = t
}

// Lookup returns the registered tool with the given name.
func Lookup(name string) (Tool, bool) {
	mu.RLock()
	defer mu.RUnlock()
	t, ok := tools[name]
	return t, ok
}

// Names returns the sorted names of all registered tools.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
