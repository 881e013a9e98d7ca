// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build runs the native project's own build tool.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/goplus/dylibpack/internal/artifact"
	"github.com/goplus/dylibpack/pkgs/buildsys"
	"github.com/qiniu/x/log"
)

// ErrNativeBuildFailed is returned when the native build tool exits unsuccessfully.
var ErrNativeBuildFailed = errors.New("native build failed")

const waitDelay = 5 * time.Second

// Invoker runs a native build as a single subprocess.
type Invoker struct {
	// Stdout and Stderr receive the build tool's output unmodified.
	// Nil means os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer

	// HeaderDir is the header directory relative to the source dir.
	HeaderDir string
}

// NewInvoker creates an Invoker that passes output through to the terminal.
func NewInvoker(headerDir string) *Invoker {
	return &Invoker{HeaderDir: headerDir}
}

// Build runs tool with profile p in srcDir and returns a handle to its outputs.
// Any failure is final; the build is never retried.
func (inv *Invoker) Build(ctx context.Context, tool buildsys.Tool, p buildsys.Profile, srcDir string) (*artifact.Handle, error) {
	if err := tool.Validate(); err != nil {
		return nil, err
	}
	spec := tool.Spec(p, srcDir)
	if err := inv.Run(ctx, spec); err != nil {
		return nil, err
	}
	return artifact.NewHandle(tool, p, srcDir, inv.HeaderDir), nil
}

// Run executes spec and waits for it to exit.
func (inv *Invoker) Run(ctx context.Context, spec buildsys.Spec) error {
	if len(spec.Command) == 0 {
		return errors.New("build: empty command")
	}
	log.Infof("running %s in %s", strings.Join(spec.Command, " "), spec.Dir)

	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdout = inv.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = inv.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	// On cancellation the tool is killed; children still holding the output
	// pipes must not keep Wait blocked.
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNativeBuildFailed, spec.Command[0], err)
	}
	return nil
}
