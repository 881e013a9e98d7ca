// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sdist

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/dylibpack/internal/binding"
	"github.com/klauspost/compress/gzip"
	"github.com/qiniu/x/log"
)

// InfoFile is the metadata file placed at the root of every distribution.
const InfoFile = "PKG-INFO"

// alwaysSkipped never make it into a distribution.
var alwaysSkipped = []string{".git", ".env", ".dylibpack.lock"}

// Packager writes a gzipped tarball of a wrapper directory.
type Packager struct {
	Name    string
	Summary string
	Dir     string   // wrapper directory to package
	Readme  string   // README embedded verbatim as the long description
	OutDir  string   // where <name>-<version>.tar.gz is written
	Exclude []string // slash-separated paths relative to Dir, matched with path.Match
	Binding string   // directory a binding is emitted into; its outputs are never packaged
}

// Package implements PackageFunc.
func (p *Packager) Package(ctx context.Context, version string) (string, error) {
	info, err := p.info(version)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.OutDir, 0o755); err != nil {
		return "", err
	}
	base := fmt.Sprintf("%s-%s", p.Name, version)
	dest := filepath.Join(p.OutDir, base+".tar.gz")

	tmp, err := os.CreateTemp(p.OutDir, "."+base+"-*.tar.gz")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if err := p.write(ctx, tmp, base, info); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", err
	}
	log.Infof("wrote %s", dest)
	return dest, nil
}

func (p *Packager) info(version string) ([]byte, error) {
	var readme []byte
	if p.Readme != "" {
		data, err := os.ReadFile(p.Readme)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		readme = data
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "Metadata-Version: 2.1\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Version: %s\n", version)
	if p.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", p.Summary)
	}
	b.WriteString("\n")
	b.Write(readme)
	return b.Bytes(), nil
}

func (p *Packager) write(ctx context.Context, w io.Writer, base string, info []byte) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)

	err := filepath.WalkDir(p.Dir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(p.Dir, file)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		return addFile(tw, file, path.Join(base, rel))
	})
	if err != nil {
		return err
	}

	hdr := &tar.Header{Name: path.Join(base, InfoFile), Mode: 0o644, Size: int64(len(info))}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(info); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

func (p *Packager) skip(rel string) bool {
	if slices.Contains(alwaysSkipped, rel) {
		return true
	}
	if out, err := filepath.Rel(p.Dir, p.OutDir); err == nil && filepath.ToSlash(out) == rel {
		return true
	}
	if p.Binding != "" {
		if dir, err := filepath.Rel(p.Dir, p.Binding); err == nil {
			for _, name := range binding.Outputs {
				if path.Join(filepath.ToSlash(dir), name) == rel {
					return true
				}
			}
		}
	}
	// Leftover temp files of an interrupted Package.
	if strings.HasPrefix(path.Base(rel), "."+p.Name+"-") && strings.HasSuffix(rel, ".tar.gz") {
		return true
	}
	for _, pattern := range p.Exclude {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func addFile(tw *tar.Writer, file, name string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
