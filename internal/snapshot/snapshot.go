// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package snapshot archives the tracked native source tree so that a source
// distribution can be built on a machine without the repository history.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"
)

// ErrUnavailable is returned when git is missing or the tree has no commits.
var ErrUnavailable = errors.New("snapshot unavailable")

// Snapshotter produces a single archive of a source tree.
type Snapshotter interface {
	// Snapshot writes an archive of the tree rooted at root to dest,
	// overwriting any existing file. Paths inside the archive are relative to root.
	Snapshot(ctx context.Context, root, dest string) error
}

// gitSnapshotter implements Snapshotter using git archive.
type gitSnapshotter struct {
	git        string
	rev        string
	attributes bool
	exclude    []string
}

// Option configures the git snapshotter.
type Option func(*gitSnapshotter)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) Option {
	return func(g *gitSnapshotter) {
		g.git = path
	}
}

// WithRevision archives rev instead of HEAD.
func WithRevision(rev string) Option {
	return func(g *gitSnapshotter) {
		g.rev = rev
	}
}

// WithWorktreeAttributes controls whether attribute files of the working
// tree (export-ignore and friends) are honored in addition to the committed ones.
func WithWorktreeAttributes(on bool) Option {
	return func(g *gitSnapshotter) {
		g.attributes = on
	}
}

// WithExclude drops paths matching the given git pathspec patterns.
func WithExclude(patterns ...string) Option {
	return func(g *gitSnapshotter) {
		g.exclude = append(g.exclude, patterns...)
	}
}

// NewGit creates a Snapshotter backed by git archive.
func NewGit(opts ...Option) Snapshotter {
	g := &gitSnapshotter{git: "git", rev: "HEAD", attributes: true}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitSnapshotter) Snapshot(ctx context.Context, root, dest string) error {
	if _, err := exec.LookPath(g.git); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if _, err := g.output(ctx, root, "rev-parse", "--verify", "--quiet", g.rev+"^{commit}"); err != nil {
		return fmt.Errorf("%w: no commit at %s in %s: %w", ErrUnavailable, g.rev, root, err)
	}

	dest, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	args := g.archiveArgs(dest)
	log.Debugf("snapshot: git %s (in %s)", strings.Join(args, " "), root)
	if _, err := g.output(ctx, root, args...); err != nil {
		return fmt.Errorf("git archive: %w", err)
	}
	return nil
}

func (g *gitSnapshotter) archiveArgs(dest string) []string {
	args := []string{"archive", "--format=zip"}
	if g.attributes {
		args = append(args, "--worktree-attributes")
	}
	args = append(args, "-o", dest, g.rev)
	if len(g.exclude) > 0 {
		args = append(args, "--", ".")
		for _, p := range g.exclude {
			args = append(args, ":(exclude)"+p)
		}
	}
	return args
}

func (g *gitSnapshotter) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
