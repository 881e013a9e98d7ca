// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goplus/dylibpack/internal/config"
	"github.com/goplus/dylibpack/internal/lockedfile"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	wrapperDir string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "dylibpack",
	Short: "dylibpack packages a native shared library as a Go binding",
	Long: `dylibpack builds a native library from its source tree, locates the produced
shared library and header, and emits a cgo package that links against them.
It also produces self-contained source distributions that carry a snapshot of
the native tree and a frozen version.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutputLevel(log.Ldebug)
		} else {
			log.SetOutputLevel(log.Linfo)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&wrapperDir, "dir", "C", ".", "Wrapper directory containing "+config.FileName)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
//
// An interrupt or termination signal cancels the command context: the running
// build tool is killed and deferred cleanup, such as removing the scratch
// source tree, runs before the process exits.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		// A second signal falls through to the default handler.
		<-ctx.Done()
		stop()
	}()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		var cErr *config.Error
		if errors.As(err, &cErr) {
			log.Fatal(cErr.String())
		}
		log.Fatal(err)
	}
}

// loadProject loads the wrapper configuration named by --dir.
func loadProject() (*config.Config, error) {
	cfg, err := config.Load(wrapperDir)
	if err != nil {
		return nil, err
	}
	log.Debugf("wrapper %s, profile %v", cfg.Dir, cfg.Profile)
	return cfg, nil
}

// locked runs fn while holding the wrapper's lock file. Waiting for the lock
// ends when ctx is canceled.
func locked(ctx context.Context, cfg *config.Config, fn func() error) error {
	type result struct {
		unlock func()
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		unlock, err := lockedfile.MutexAt(cfg.LockPath()).Lock()
		ch <- result{unlock, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.unlock != nil {
				r.unlock()
			}
		}()
		return ctx.Err()
	}
	if r.err != nil {
		return fmt.Errorf("failed to lock %s: %w", cfg.Dir, r.err)
	}
	defer r.unlock()
	return fn()
}
