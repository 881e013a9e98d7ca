// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package build

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/qiniu/x/log"
)

// Source is the native source tree a build runs against: either the live
// tree next to the wrapper or a snapshot unpacked into a scratch directory.
type Source struct {
	// Dir is where the build command runs.
	Dir string

	scratch string
	once    sync.Once
	err     error
}

// Scratch returns the temporary extraction directory, or "" for a live tree.
func (s *Source) Scratch() string {
	return s.scratch
}

// Close removes the scratch directory. It is safe to call more than once;
// only the first call removes anything.
func (s *Source) Close() error {
	s.once.Do(func() {
		if s.scratch == "" {
			return
		}
		log.Debugf("removing scratch directory %s", s.scratch)
		s.err = os.RemoveAll(s.scratch)
	})
	return s.err
}

// OpenSource selects the source tree. If archive exists it is extracted into a
// fresh temporary directory and the build addresses subdir inside it;
// otherwise liveDir is used as is and nothing is created.
//
// The caller must Close the returned Source on every path.
func OpenSource(archive, subdir, liveDir string) (*Source, error) {
	if _, err := os.Stat(archive); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debugf("no source archive at %s, using %s", archive, liveDir)
			return &Source{Dir: liveDir}, nil
		}
		return nil, err
	}

	scratch, err := os.MkdirTemp("", "dylibpack-src-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	src := &Source{Dir: filepath.Join(scratch, filepath.FromSlash(subdir)), scratch: scratch}
	log.Infof("extracting %s into %s", archive, scratch)
	if err := extract(archive, scratch); err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to extract %s: %w", archive, err)
	}
	return src, nil
}

func extract(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractFile(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	target, err := securePath(dest, f.Name)
	if err != nil {
		return err
	}
	if err := noLinkedParent(dest, target); err != nil {
		return err
	}
	info := f.FileInfo()
	if info.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return extractSymlink(f, dest, target)
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := info.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// extractSymlink restores a link whose target stays inside dest.
func extractSymlink(f *zip.File, dest, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	link := filepath.FromSlash(string(data))
	if filepath.IsAbs(link) || strings.HasPrefix(string(data), "/") {
		return fmt.Errorf("illegal symlink in archive: %s -> %s", f.Name, data)
	}
	if !within(dest, filepath.Join(filepath.Dir(target), link)) {
		return fmt.Errorf("illegal symlink in archive: %s -> %s", f.Name, data)
	}
	return os.Symlink(link, target)
}

// noLinkedParent rejects target when a directory between dest and target is
// a symlink, so a link entry cannot redirect later entries.
func noLinkedParent(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil || rel == "." {
		return err
	}
	dir := dest
	for _, elem := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, elem)
		fi, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("illegal path in archive: %s is a symlink", dir)
		}
	}
	return nil
}

func within(dest, target string) bool {
	rel, err := filepath.Rel(dest, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// securePath joins name onto dest, rejecting entries that would escape it.
func securePath(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("illegal absolute path in archive: %s", name)
	}
	target := filepath.Join(dest, filepath.FromSlash(name))
	if !within(dest, target) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return target, nil
}
