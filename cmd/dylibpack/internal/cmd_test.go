package internal

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/goplus/dylibpack/internal/artifact"
	"github.com/goplus/dylibpack/internal/binding"
	"github.com/goplus/dylibpack/internal/build"
	"github.com/goplus/dylibpack/internal/config"
	"github.com/goplus/dylibpack/internal/lockedfile"
	"github.com/goplus/dylibpack/pkgs/buildsys"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wrapperConfig = `name = "answer"
module = "answer._native"

[native]
dir = "../native"
library = "answer"
header = "answer.h"

[native.tool]
command = ["sh", "build.sh"]
optimize-flag = "--release"
release-dir = "out/release"
debug-dir = "out/debug"

[snapshot]
archive = "nativesrc.zip"
subdir = "native"
`

const buildScript = `set -e
profile=debug
if [ "$1" = "--release" ]; then profile=release; fi
mkdir -p "out/$profile" include
: > "out/$profile/$LIBFILE"
echo 'int answer(void);' > include/answer.h
`

func requireTool(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not found in PATH", name)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newLayout creates repo/{Cargo.toml,native/build.sh,py/dylibpack.toml} and
// returns repo and the wrapper directory.
func newLayout(t *testing.T, manifest string) (string, string) {
	t.Helper()
	repo := t.TempDir()
	wrapper := filepath.Join(repo, "py")
	if manifest != "" {
		writeFile(t, filepath.Join(repo, "Cargo.toml"), manifest)
	}
	writeFile(t, filepath.Join(repo, "native", "build.sh"), buildScript)
	writeFile(t, filepath.Join(wrapper, config.FileName), wrapperConfig)
	writeFile(t, filepath.Join(wrapper, "README"), "The answer.\n")
	t.Setenv("LIBFILE", artifact.DylibName(runtime.GOOS, "answer"))
	return repo, wrapper
}

func quietInvoker() *build.Invoker {
	return &build.Invoker{Stdout: io.Discard, Stderr: io.Discard, HeaderDir: "include"}
}

func TestBuildBindingFromLiveTree(t *testing.T) {
	requireTool(t, "sh")
	_, wrapper := newLayout(t, "[package]\nversion = \"9.3.1\"\n")

	for _, p := range []buildsys.Profile{buildsys.Optimized, buildsys.Debug} {
		t.Run(p.String(), func(t *testing.T) {
			cfg, err := config.LoadWith(wrapper, func(key string) (string, bool) {
				if key == "DYLIBPACK_DEBUG" && p == buildsys.Debug {
					return "1", true
				}
				return "", false
			})
			require.NoError(t, err)

			out := t.TempDir()
			m, err := buildBinding(context.Background(), cfg, quietInvoker(), out)
			require.NoError(t, err)
			assert.Equal(t, "9.3.1", m.Version)
			assert.Equal(t, p.String(), m.Profile)
			assert.Equal(t, "NOW|NODELETE", m.Flags)

			assert.FileExists(t, filepath.Join(out, filepath.FromSlash(m.Dylib)))
			assert.FileExists(t, filepath.Join(out, "include", "answer.h"))
			assert.FileExists(t, filepath.Join(out, binding.CgoFile))
			assert.FileExists(t, filepath.Join(out, binding.ManifestFile))
		})
	}
}

func TestBuildBindingFromArchive(t *testing.T) {
	requireTool(t, "sh")
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	repo, wrapper := newLayout(t, "")
	require.NoError(t, os.Remove(filepath.Join(repo, "native", "build.sh")))
	writeFile(t, filepath.Join(wrapper, "version.txt"), "2.0.0\n")

	f, err := os.Create(filepath.Join(wrapper, "nativesrc.zip"))
	require.NoError(t, err)
	w := zip.NewWriter(f)
	fw, err := w.Create("native/build.sh")
	require.NoError(t, err)
	_, err = fw.Write([]byte(buildScript))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	cfg, err := config.LoadWith(wrapper, func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	out := t.TempDir()
	m, err := buildBinding(context.Background(), cfg, quietInvoker(), out)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", m.Version)
	assert.FileExists(t, filepath.Join(out, filepath.FromSlash(m.Dylib)))

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left, "scratch directory must be removed")
}

func TestBuildBindingFailure(t *testing.T) {
	requireTool(t, "sh")
	repo, wrapper := newLayout(t, "[package]\nversion = \"1.0.0\"\n")
	writeFile(t, filepath.Join(repo, "native", "build.sh"), "echo 'error[E0425]: unresolved' >&2\nexit 3\n")

	cfg, err := config.LoadWith(wrapper, func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	var stderr bytes.Buffer
	inv := &build.Invoker{Stdout: io.Discard, Stderr: &stderr, HeaderDir: "include"}
	out := t.TempDir()
	_, err = buildBinding(context.Background(), cfg, inv, out)
	assert.ErrorIs(t, err, build.ErrNativeBuildFailed)
	assert.Contains(t, stderr.String(), "error[E0425]")

	emitted, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, emitted)
}

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestBuildBindingInterrupted(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "sleep")
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	_, wrapper := newLayout(t, "[package]\nversion = \"1.0.0\"\n")
	writeArchive(t, filepath.Join(wrapper, "nativesrc.zip"), map[string]string{
		"native/build.sh": "exec sleep 60\n",
	})
	cfg, err := config.LoadWith(wrapper, func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = buildBinding(ctx, cfg, quietInvoker(), t.TempDir())
	assert.ErrorIs(t, err, build.ErrNativeBuildFailed)
	assert.Less(t, time.Since(start), 30*time.Second, "the build tool is killed on cancellation")

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left, "scratch directory must be removed")
}

func TestLockedCanceledWhileWaiting(t *testing.T) {
	_, wrapper := newLayout(t, "")
	cfg, err := config.LoadWith(wrapper, func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	unlock, err := lockedfile.MutexAt(cfg.LockPath()).Lock()
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	ran := false
	err = locked(ctx, cfg, func() error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestVersionCommand(t *testing.T) {
	_, wrapper := newLayout(t, "[package]\nversion = \"9.3.1\"\n")
	t.Cleanup(func() { versionWrite = false })

	run := func(ctx context.Context, args ...string) (string, error) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(append([]string{"-C", wrapper}, args...))
		err := rootCmd.ExecuteContext(ctx)
		return out.String(), err
	}

	out, err := run(context.Background(), "version", "-w")
	require.NoError(t, err)
	assert.Equal(t, "9.3.1\n", out)
	data, err := os.ReadFile(filepath.Join(wrapper, "version.txt"))
	require.NoError(t, err)
	assert.Equal(t, "9.3.1\n", string(data))

	// Freezing the version waits for a concurrent build or sdist.
	require.NoError(t, os.Remove(filepath.Join(wrapper, "version.txt")))
	unlock, err := lockedfile.MutexAt(filepath.Join(wrapper, ".dylibpack.lock")).Lock()
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = run(ctx, "version", "-w")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoFileExists(t, filepath.Join(wrapper, "version.txt"))
}

func git(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		"GIT_CONFIG_GLOBAL="+os.DevNull, "GIT_CONFIG_SYSTEM="+os.DevNull,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func tarNames(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(zr)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag == tar.TypeReg {
			names = append(names, hdr.Name)
		}
	}
	sort.Strings(names)
	return names
}

func TestSourceDistThenBuildWithoutManifest(t *testing.T) {
	requireTool(t, "sh")
	requireTool(t, "git")
	repo, wrapper := newLayout(t, "[package]\nversion = \"9.3.1\"\n")
	git(t, repo, "init", "-q")
	git(t, repo, "add", ".")
	git(t, repo, "commit", "-q", "-m", "init")

	cfg, err := config.LoadWith(wrapper, func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	file, err := sourceDist(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wrapper, "dist", "answer-9.3.1.tar.gz"), file)
	assert.Equal(t, []string{
		"answer-9.3.1/PKG-INFO",
		"answer-9.3.1/README",
		"answer-9.3.1/dylibpack.toml",
		"answer-9.3.1/nativesrc.zip",
		"answer-9.3.1/version.txt",
	}, tarNames(t, file))

	data, err := os.ReadFile(cfg.FallbackPath())
	require.NoError(t, err)
	assert.Equal(t, "9.3.1\n", string(data))

	// An unpacked distribution has neither the manifest nor the live tree.
	require.NoError(t, os.RemoveAll(filepath.Join(repo, "native")))
	require.NoError(t, os.Remove(filepath.Join(repo, "Cargo.toml")))

	m, err := buildBinding(context.Background(), cfg, quietInvoker(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "9.3.1", m.Version)
}

func TestDefaultPublishFiles(t *testing.T) {
	_, wrapper := newLayout(t, "")
	cfg, err := config.LoadWith(wrapper, func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	assert.Empty(t, defaultPublishFiles(cfg, "1.0.0"))

	tarball := filepath.Join(wrapper, "dist", "answer-1.0.0.tar.gz")
	writeFile(t, tarball, "tgz")
	assert.Equal(t, []string{tarball}, defaultPublishFiles(cfg, "1.0.0"))
}
