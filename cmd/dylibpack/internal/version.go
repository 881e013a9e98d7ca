// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"

	"github.com/goplus/dylibpack/internal/version"
	"github.com/spf13/cobra"
)

var versionWrite bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the resolved version of the native project",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	versionCmd.Flags().BoolVarP(&versionWrite, "write", "w", false, "Also freeze the version into the fallback file")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	versions := &version.Resolver{Manifest: cfg.ManifestPath(), Fallback: cfg.FallbackPath()}
	v, err := versions.Resolve()
	if err != nil {
		return err
	}
	if versionWrite {
		err := locked(cmd.Context(), cfg, func() error {
			return versions.Write(v)
		})
		if err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}
