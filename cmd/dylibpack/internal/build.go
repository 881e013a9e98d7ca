// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"fmt"

	"github.com/goplus/dylibpack/internal/binding"
	"github.com/goplus/dylibpack/internal/build"
	"github.com/goplus/dylibpack/internal/config"
	"github.com/goplus/dylibpack/internal/version"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var buildOutput string

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the native library and emit the Go binding",
	Long: `Build resolves the version, builds the native library from the snapshot
archive when one exists (otherwise from the live source tree), and writes a
cgo package linking the produced shared library.

Set the build-mode variable (DYLIBPACK_DEBUG=1 by default) for a debug build.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Directory to emit the binding package into (default from "+config.FileName+")")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	out := cfg.BindingDir()
	if buildOutput != "" {
		out = buildOutput
	}
	return locked(cmd.Context(), cfg, func() error {
		m, err := buildBinding(cmd.Context(), cfg, build.NewInvoker(cfg.Native.HeaderDir), out)
		if err != nil {
			return err
		}
		log.Infof("emitted %s %s (%s, %s) into %s", m.Module, m.Version, m.Profile, m.Flags, out)
		return nil
	})
}

// buildBinding runs the whole build pipeline for cfg and emits into out.
func buildBinding(ctx context.Context, cfg *config.Config, inv *build.Invoker, out string) (*binding.Manifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	versions := &version.Resolver{Manifest: cfg.ManifestPath(), Fallback: cfg.FallbackPath()}
	v, err := versions.Resolve()
	if err != nil {
		return nil, err
	}
	log.Infof("building %s %s (%v)", cfg.Name, v, cfg.Profile)

	src, err := build.OpenSource(cfg.ArchivePath(), cfg.Snapshot.Subdir, cfg.NativeDir())
	if err != nil {
		return nil, err
	}
	defer src.Close()

	h, err := inv.Build(ctx, cfg.Tool(), cfg.Profile, src.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", cfg.Name, err)
	}

	d := binding.Register(cfg.Module, h, cfg.Native.Library, cfg.Native.Header)
	return binding.Emit(d, binding.EmitOptions{Dir: out, Version: v})
}
