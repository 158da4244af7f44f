package bisque

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jward/bisque/internal/scan"
)

// testEnv is a temp directory acting as the local root, with a private
// registry scanning under it.
type testEnv struct {
	t   *testing.T
	dir string
	reg *Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	return &testEnv{t: t, dir: dir, reg: NewRegistry(WithScanner(scan.New([]string{dir})))}
}

// write creates name under the env's root and returns its path.
func (e *testEnv) write(name, content string) string {
	e.t.Helper()
	p := filepath.Join(e.dir, filepath.FromSlash(name))
	require.NoError(e.t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(e.t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// kind registers a kind defined by a single source file and returns the
// file's path.
func (e *testEnv) kind(name string) string {
	e.t.Helper()
	src := e.write("kinds/"+name+".py", "# "+name+"\n")
	require.NoError(e.t, e.reg.Register(KindSpec{Name: name, Sources: []string{src}}))
	return src
}

// job returns a FuncJob in the env's registry that concatenates its inputs.
func (e *testEnv) job(kind string, params map[string]any, inputs ...Artifact) *FuncJob {
	return NewFuncJob(kind, params, concat, inputs, WithRegistry(e.reg))
}

func concat(_ context.Context, inputs []string, output string) error {
	var out []byte
	for _, in := range inputs {
		data, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		out = append(out, data...)
	}
	return os.WriteFile(output, out, 0o644)
}

func mustHash(t *testing.T, a Artifact) Digest {
	t.Helper()
	d, err := a.SecHash()
	require.NoError(t, err)
	return d
}

func mustJobHash(t *testing.T, j Job) Digest {
	t.Helper()
	d, err := j.SecHash()
	require.NoError(t, err)
	return d
}

func ids[T interface{ ID() NodeID }](nodes []T) []NodeID {
	out := make([]NodeID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}
