// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package binding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/iancoleman/strcase"
	"github.com/qiniu/x/log"
	"golang.org/x/tools/imports"
)

const (
	// CgoFile is the generated Go file linking the package against the library.
	CgoFile = "zz_binding_cgo.go"
	// ManifestFile records what was bound.
	ManifestFile = "binding.json"
)

// Outputs lists what Emit writes, relative to the package directory.
var Outputs = []string{"lib", "include", CgoFile, ManifestFile}

// EmitOptions configures where and how a descriptor is materialized.
type EmitOptions struct {
	Dir     string // package directory to write into
	Version string
	GOOS    string // empty means runtime.GOOS
}

// Manifest describes an emitted binding. Paths are relative to the package directory.
type Manifest struct {
	Module  string   `json:"module"`
	Package string   `json:"package"`
	Version string   `json:"version"`
	Profile string   `json:"profile"`
	Flags   string   `json:"flags"`
	Dylib   string   `json:"dylib"`
	Header  string   `json:"header"`
	LDFlags []string `json:"ldflags"`

	// Pin is the name the package reopens the loaded library by at init,
	// with PinMode as the dlopen mode. Empty when the platform has no
	// equivalent or no residency was requested.
	Pin     string `json:"pin,omitempty"`
	PinMode string `json:"pinMode,omitempty"`
}

// Emit resolves the artifacts of d and writes a cgo package around them:
// the library under lib/, the header under include/, the generated cgo file
// and the manifest.
func Emit(d Descriptor, opts EmitOptions) (*Manifest, error) {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	dylib, err := d.Dylib()
	if err != nil {
		return nil, err
	}
	header, err := d.HeaderFile()
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Module:  d.Module,
		Package: PackageName(d.Module),
		Version: opts.Version,
		Profile: d.Profile.String(),
		Flags:   d.Flags.String(),
		Dylib:   filepath.ToSlash(filepath.Join("lib", filepath.Base(dylib))),
		Header:  filepath.ToSlash(filepath.Join("include", filepath.Base(header))),
	}
	if mode := d.Flags.DlopenMode(); mode != "" {
		m.Pin = pinName(goos, filepath.Base(dylib))
		if m.Pin != "" {
			m.PinMode = mode
		}
	}
	m.LDFlags = ldflags(d, goos, m.Pin != "")

	if err := copyFile(dylib, filepath.Join(opts.Dir, filepath.FromSlash(m.Dylib)), 0o755); err != nil {
		return nil, err
	}
	if err := copyFile(header, filepath.Join(opts.Dir, filepath.FromSlash(m.Header)), 0o644); err != nil {
		return nil, err
	}

	src, err := Generate(m)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(opts.Dir, CgoFile), src, 0o644); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(opts.Dir, ManifestFile), append(data, '\n'), 0o644); err != nil {
		return nil, err
	}
	log.Infof("bound %s (%s) into %s", d.Module, d.Flags, opts.Dir)
	return m, nil
}

func ldflags(d Descriptor, goos string, pin bool) []string {
	flags := []string{"-L${SRCDIR}/lib", "-l" + d.Lib}
	if goos != "windows" {
		flags = append(flags, "-Wl,-rpath,${SRCDIR}/lib")
	}
	flags = append(flags, d.Flags.LinkerFlags(goos)...)
	if pin && goos == "linux" {
		// dlopen lives in libdl before glibc 2.34.
		flags = append(flags, "-ldl")
	}
	return flags
}

// pinName is how dlopen finds the library the binary was linked against.
func pinName(goos, file string) string {
	switch goos {
	case "windows":
		return ""
	case "darwin", "ios":
		return "@rpath/" + file
	}
	return file
}

var cgoTemplate = template.Must(template.New("cgo").Funcs(template.FuncMap{
	"base":  path.Base,
	"join":  strings.Join,
	"quote": strconv.Quote,
}).Parse(`// Code generated by dylibpack. DO NOT EDIT.

package {{.Package}}

/*
#cgo CFLAGS: -I${SRCDIR}/include
#cgo LDFLAGS: {{join .LDFlags " "}}
#include {{quote (base .Header)}}
{{- if .Pin}}
#include <dlfcn.h>

static int dylibpack_pin(void) {
	return dlopen({{quote .Pin}}, {{.PinMode}}) != 0;
}
{{- end}}
*/
import "C"

// Module is the identifier this binding was registered under.
const Module = {{quote .Module}}

// Version is the version of the native library behind this binding.
const Version = {{quote .Version}}
{{if .Pin}}
// Pinned reports whether the library was made resident for the life of the
// process when this package was initialized.
var Pinned = C.dylibpack_pin() != 0
{{- else}}
// Pinned reports whether the library was made resident for the life of the
// process. The loader of this platform offers no such request.
const Pinned = false
{{- end}}
`))

// Generate renders the cgo file for m.
func Generate(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := cgoTemplate.Execute(&buf, m); err != nil {
		return nil, err
	}
	out, err := imports.Process(CgoFile, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", CgoFile, err)
	}
	return out, nil
}

// PackageName derives a Go package name from a module identifier such as
// "symbolic._lowlevel" or "github.com/acme/NativeLib".
func PackageName(module string) string {
	last := module
	if i := strings.LastIndexAny(last, "./"); i >= 0 {
		last = last[i+1:]
	}
	var b strings.Builder
	for _, r := range strcase.ToSnake(last) {
		if r == '_' || r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	name := b.String()
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "binding" + name
	}
	return name
}

func copyFile(src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
