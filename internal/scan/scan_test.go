package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/bisque/internal/store"
)

// writeTree creates files under dir from a path → content map and returns
// dir's absolute path.
func writeTree(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	for rel, content := range files {
		p := filepath.Join(abs, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return abs
}

func join(root string, rels ...string) []string {
	out := make([]string, len(rels))
	for i, rel := range rels {
		out[i] = filepath.Join(root, filepath.FromSlash(rel))
	}
	return out
}

// --- Language detection ---

func TestLanguageForFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"main.go", "go", true},
		{"train.py", "python", true},
		{"TRAIN.PY", "python", true},
		{"notes.txt", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		got, ok := LanguageForFile(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

// --- Python ---

func TestDeps_PythonLocalAndExternal(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"job.py": `import os
import numpy as np
import util
from pkg.sub import helper
`,
		"util.py":         "import json\n",
		"pkg/__init__.py": "",
		"pkg/sub.py":      "from .other import thing\n",
		"pkg/other.py":    "thing = 1\n",
		"unrelated.py":    "x = 1\n",
	})

	got, err := New([]string{root}).Deps(filepath.Join(root, "job.py"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "job.py", "pkg/__init__.py", "pkg/other.py", "pkg/sub.py", "util.py"), got)
}

func TestDeps_PythonFromImportsSubmodule(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"main.py":            "from models import dtree, nothere\n",
		"models/__init__.py": "",
		"models/dtree.py":    "",
	})

	got, err := New([]string{root}).Deps(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "main.py", "models/__init__.py", "models/dtree.py"), got)
}

func TestDeps_PythonNestedImport(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"main.py": `def run():
    try:
        import lazy
    except ImportError:
        pass
`,
		"lazy.py": "",
	})

	got, err := New([]string{root}).Deps(filepath.Join(root, "main.py"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "lazy.py", "main.py"), got)
}

func TestDeps_PythonCycle(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"a.py": "import b\n",
		"b.py": "import a\n",
	})

	got, err := New([]string{root}).Deps(filepath.Join(root, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "a.py", "b.py"), got)
}

func TestDeps_OutsideRootIgnored(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	local := writeTree(t, filepath.Join(base, "local"), map[string]string{
		"job.py": "import shared\n",
	})
	writeTree(t, filepath.Join(base, "vendor"), map[string]string{
		"shared.py": "",
	})

	got, err := New([]string{local}).Deps(filepath.Join(local, "job.py"))
	require.NoError(t, err)
	assert.Equal(t, join(local, "job.py"), got)
}

func TestDeps_MultipleRoots(t *testing.T) {
	t.Parallel()
	base := t.TempDir()
	a := writeTree(t, filepath.Join(base, "a"), map[string]string{"job.py": "import shared\n"})
	b := writeTree(t, filepath.Join(base, "b"), map[string]string{"shared.py": ""})

	got, err := New([]string{a, b}).Deps(filepath.Join(a, "job.py"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(a, "job.py"), filepath.Join(b, "shared.py")}, got)
}

func TestDeps_EnvRoots(t *testing.T) {
	base := t.TempDir()
	a := writeTree(t, filepath.Join(base, "a"), map[string]string{"job.py": "import shared\n"})
	b := writeTree(t, filepath.Join(base, "b"), map[string]string{"shared.py": ""})
	t.Setenv(EnvPath, a+string(os.PathListSeparator)+b)

	assert.Equal(t, []string{a, b}, DefaultRoots())

	got, err := New(nil).Deps(filepath.Join(a, "job.py"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(a, "job.py"), filepath.Join(b, "shared.py")}, got)
}

func TestDeps_FallbackRootIsFileDir(t *testing.T) {
	t.Setenv(EnvPath, "")
	root := writeTree(t, t.TempDir(), map[string]string{
		"job.py":     "import sibling\n",
		"sibling.py": "",
	})

	assert.Nil(t, DefaultRoots())
	got, err := New(nil).Deps(filepath.Join(root, "job.py"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "job.py", "sibling.py"), got)
}

func TestDeps_SyntaxError(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"job.py":  "import util\n",
		"util.py": "def broken(:\n",
	})

	_, err := New([]string{root}).Deps(filepath.Join(root, "job.py"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "util.py")
}

func TestDeps_Missing(t *testing.T) {
	t.Parallel()
	_, err := New(nil).Deps(filepath.Join(t.TempDir(), "nope.py"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDeps_LeafFile(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{"train.risor": "print(1)\n"})

	got, err := New([]string{root}).Deps(filepath.Join(root, "train.risor"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "train.risor"), got)
}

// --- Go ---

func TestDeps_GoModulePackages(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"go.mod": "module example.com/pipe\n\ngo 1.22\n",
		"cmd/train/main.go": `package main

import (
	"fmt"

	"example.com/pipe/feature"
	ext "github.com/other/lib"
)

func main() { fmt.Println(feature.X, ext.Y) }
`,
		"cmd/train/flags.go":        "package main\n",
		"cmd/train/main_test.go":    "package main\n",
		"feature/feature.go":        "package feature\n\nimport \"example.com/pipe/internal/util\"\n\nvar X = util.Z\n",
		"internal/util/util.go":     "package util\n\nvar Z = 1\n",
		"internal/unused/unused.go": "package unused\n",
	})

	got, err := New([]string{root}).Deps(filepath.Join(root, "cmd/train/main.go"))
	require.NoError(t, err)
	assert.Equal(t, join(root,
		"cmd/train/flags.go",
		"cmd/train/main.go",
		"feature/feature.go",
		"internal/util/util.go",
	), got)
}

func TestDeps_GoWithoutModule(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"main.go": "package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println() }\n",
	})

	got, err := New([]string{root}).Deps(filepath.Join(root, "main.go"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "main.go"), got)
}

// --- Cache ---

func TestDeps_CacheRoundTrip(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"job.py":          "import util\nfrom pkg import mod\n",
		"util.py":         "",
		"pkg/__init__.py": "",
		"pkg/mod.py":      "",
	})
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	uncached, err := New([]string{root}).Deps(filepath.Join(root, "job.py"))
	require.NoError(t, err)

	sc := New([]string{root}, WithCache(s))
	first, err := sc.Deps(filepath.Join(root, "job.py"))
	require.NoError(t, err)
	second, err := sc.Deps(filepath.Join(root, "job.py"))
	require.NoError(t, err)

	assert.Equal(t, uncached, first)
	assert.Equal(t, first, second)

	f, err := s.FileByPath(filepath.Join(root, "job.py"))
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "python", f.Language)
	imps, err := s.ImportsByFile(f.ID)
	require.NoError(t, err)
	assert.Len(t, imps, 2)
}

func TestDeps_CacheInvalidatedByContent(t *testing.T) {
	t.Parallel()
	root := writeTree(t, t.TempDir(), map[string]string{
		"job.py": "import a\n",
		"a.py":   "",
		"b.py":   "",
	})
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sc := New([]string{root}, WithCache(s))
	got, err := sc.Deps(filepath.Join(root, "job.py"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "a.py", "job.py"), got)

	writeTree(t, root, map[string]string{"job.py": "import b\n"})
	got, err = sc.Deps(filepath.Join(root, "job.py"))
	require.NoError(t, err)
	assert.Equal(t, join(root, "b.py", "job.py"), got)
}
