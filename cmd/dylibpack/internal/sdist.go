// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"

	"github.com/goplus/dylibpack/internal/config"
	"github.com/goplus/dylibpack/internal/sdist"
	"github.com/goplus/dylibpack/internal/snapshot"
	"github.com/goplus/dylibpack/internal/version"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var sdistCmd = &cobra.Command{
	Use:   "sdist",
	Short: "Produce a self-contained source distribution",
	Long: `Sdist snapshots the native tree into the source archive, freezes the
resolved version into the fallback file, then packages the wrapper directory
as <name>-<version>.tar.gz. A missing snapshot is fatal here.`,
	Args: cobra.NoArgs,
	RunE: runSdist,
}

func init() {
	rootCmd.AddCommand(sdistCmd)
}

func runSdist(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	return locked(cmd.Context(), cfg, func() error {
		file, err := sourceDist(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		log.Infof("wrote %s", file)
		return nil
	})
}

func newSnapshotter(cfg *config.Config) snapshot.Snapshotter {
	return snapshot.NewGit(
		snapshot.WithWorktreeAttributes(cfg.WorktreeAttributes()),
		snapshot.WithExclude(cfg.Snapshot.Exclude...),
	)
}

func sourceDist(ctx context.Context, cfg *config.Config) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	versions := &version.Resolver{Manifest: cfg.ManifestPath(), Fallback: cfg.FallbackPath()}
	v, err := versions.Resolve()
	if err != nil {
		return "", err
	}
	pkg := &sdist.Packager{
		Name:    cfg.Name,
		Summary: cfg.Dist.Summary,
		Dir:     cfg.Dir,
		Readme:  cfg.ReadmePath(),
		OutDir:  cfg.DistDir(),
		Exclude: cfg.Dist.Exclude,
		Binding: cfg.BindingDir(),
	}
	hook := &sdist.Hook{
		Snapshotter: newSnapshotter(cfg),
		Versions:    versions,
		Root:        cfg.NativeRoot(),
		Archive:     cfg.ArchivePath(),
		Package:     pkg.Package,
	}
	return hook.Run(ctx, v)
}
