// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"errors"

	"github.com/goplus/dylibpack/internal/snapshot"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Refresh the native source archive",
	Long: `Snapshot archives the committed native tree into the source archive.
Outside a git checkout this is a no-op and the existing archive is kept.`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	return locked(cmd.Context(), cfg, func() error {
		err := newSnapshotter(cfg).Snapshot(cmd.Context(), cfg.NativeRoot(), cfg.ArchivePath())
		if errors.Is(err, snapshot.ErrUnavailable) {
			log.Warnf("skipping snapshot: %v", err)
			return nil
		}
		if err != nil {
			return err
		}
		log.Infof("wrote %s", cfg.ArchivePath())
		return nil
	})
}
