// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/dylibpack/internal/binding"
	"github.com/goplus/dylibpack/internal/config"
	"github.com/goplus/dylibpack/internal/publish"
	"github.com/goplus/dylibpack/internal/version"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish [file...]",
	Short: "Upload distributions to S3-compatible storage",
	Long: `Publish uploads the given files, or by default the source distribution and
binding manifest of the current version, under <name>/<version>/ in the bucket
configured by the ARTIFACT_S3_* variables.`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadProject()
	if err != nil {
		return err
	}
	v, err := (&version.Resolver{Manifest: cfg.ManifestPath(), Fallback: cfg.FallbackPath()}).Resolve()
	if err != nil {
		return err
	}
	files := args
	if len(files) == 0 {
		files = defaultPublishFiles(cfg, v)
	}
	if len(files) == 0 {
		return fmt.Errorf("nothing to publish for %s %s", cfg.Name, v)
	}
	u, err := publish.New(publish.ConfigFromEnv(os.LookupEnv))
	if err != nil {
		return err
	}
	for _, file := range files {
		key, err := u.Upload(cmd.Context(), file, cfg.Name, v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
	}
	return nil
}

// defaultPublishFiles lists the produced files of version v that exist.
func defaultPublishFiles(cfg *config.Config, v string) []string {
	candidates := []string{
		filepath.Join(cfg.DistDir(), cfg.Name+"-"+v+".tar.gz"),
		filepath.Join(cfg.BindingDir(), binding.ManifestFile),
	}
	var files []string
	for _, file := range candidates {
		if _, err := os.Stat(file); err == nil {
			files = append(files, file)
		} else {
			log.Debugf("not publishing %s: %v", file, err)
		}
	}
	return files
}
