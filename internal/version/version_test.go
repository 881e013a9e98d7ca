package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	dir := t.TempDir()
	return &Resolver{
		Manifest: filepath.Join(dir, "Cargo.toml"),
		Fallback: filepath.Join(dir, "py", "version.txt"),
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestResolveManifestWins(t *testing.T) {
	r := newResolver(t)
	writeFile(t, r.Manifest, `[package]
name = "symbolic"
version = "9.3.1"
edition = "2021"

[dependencies]
serde = { version = "1.0" }
`)
	writeFile(t, r.Fallback, "1.0.0\n")

	v, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "9.3.1", v)
}

func TestResolveManifestLocations(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{"top level", "version = \"2.0.0\"\n", "2.0.0"},
		{"workspace", "[workspace.package]\nversion = \"3.1.4\"\n", "3.1.4"},
		{"package before workspace", "[package]\nversion = \"1.2.3\"\n[workspace.package]\nversion = \"3.1.4\"\n", "1.2.3"},
		{"inherited from workspace", "[package]\nversion.workspace = true\n[workspace.package]\nversion = \"0.4.0\"\n", "0.4.0"},
		{"prerelease", "[package]\nversion = \"1.0.0-beta.2\"\n", "1.0.0-beta.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t)
			writeFile(t, r.Manifest, tt.manifest)
			v, err := r.Resolve()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestResolveManifestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"no version", "[package]\nname = \"x\"\n"},
		{"malformed", "[package\nversion = \"1.0.0\"\n"},
		{"not semver", "[package]\nversion = \"latest\"\n"},
		{"four components", "[package]\nversion = \"1.0.0.post1\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t)
			writeFile(t, r.Manifest, tt.manifest)
			writeFile(t, r.Fallback, "1.0.0\n")
			_, err := r.Resolve()
			assert.ErrorIs(t, err, ErrUnresolvable)
		})
	}
}

func TestResolveFallback(t *testing.T) {
	r := newResolver(t)
	writeFile(t, r.Fallback, "  0.8.2 \nignored\n")

	v, err := r.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "0.8.2", v)
}

func TestResolveFallbackMissing(t *testing.T) {
	r := newResolver(t)
	_, err := r.Resolve()
	assert.ErrorIs(t, err, ErrUnresolvable)

	writeFile(t, r.Fallback, "\n")
	_, err = r.Resolve()
	assert.ErrorIs(t, err, ErrUnresolvable)
}

func TestWriteRoundTrip(t *testing.T) {
	for _, v := range []string{"9.3.1", "0.0.1-alpha", "v2.1.0"} {
		t.Run(v, func(t *testing.T) {
			r := newResolver(t)
			require.NoError(t, r.Write(" "+v+"\n"))

			data, err := os.ReadFile(r.Fallback)
			require.NoError(t, err)
			assert.Equal(t, v+"\n", string(data))

			got, err := r.Resolve()
			require.NoError(t, err)
			assert.Equal(t, v, got)
		})
	}
}

func TestWriteEmpty(t *testing.T) {
	r := newResolver(t)
	assert.ErrorIs(t, r.Write("  "), ErrUnresolvable)
	_, err := os.Stat(r.Fallback)
	assert.True(t, os.IsNotExist(err))
}
