package bisque

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const joinScript = `
import util

text := ""
for _, p := range inputs {
    text = text + read_file(p)
}
log.Info("joined " + params["prefix"])
write_file(output, util.shout(params["prefix"] + text))
`

const utilScript = `
func shout(s) {
    return s + "!"
}
`

func (e *testEnv) scriptKind(name, body string) string {
	e.t.Helper()
	script := e.write("scripts/"+name+".risor", body)
	util := e.write("scripts/util.risor", utilScript)
	require.NoError(e.t, e.reg.Register(KindSpec{Name: name, Sources: []string{script, util}}))
	return script
}

func TestScriptJob_Run(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	script := e.scriptKind("join", joinScript)
	repo := newTestRepo(t)

	a := NewFixedArtifact(e.write("a.txt", "foo"))
	b := NewFixedArtifact(e.write("b.txt", "bar"))
	j, err := NewScriptJob("join", script, map[string]any{"prefix": ">"}, []Artifact{a, b}, WithRegistry(e.reg))
	require.NoError(t, err)

	require.NoError(t, repo.Build(context.Background(), j.Output()))

	p, err := repo.Path(j.Output())
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, ">foobar!", string(data))
}

func TestScriptJob_SourceEditChangesKey(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	script := e.scriptKind("join", joinScript)

	a := NewFixedArtifact(e.write("a.txt", "foo"))
	j, err := NewScriptJob("join", script, map[string]any{"prefix": ">"}, []Artifact{a}, WithRegistry(e.reg))
	require.NoError(t, err)
	before := mustHash(t, j.Output())

	// The imported module is part of the manifest too.
	require.NoError(t, os.WriteFile(e.write("scripts/util.risor", utilScript), []byte(utilScript+"\n"), 0o644))
	assert.NotEqual(t, before, mustHash(t, j.Output()))
}

func TestScriptJob_ParamsInKey(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	script := e.scriptKind("join", joinScript)
	a := NewFixedArtifact(e.write("a.txt", "foo"))

	x, err := NewScriptJob("join", script, map[string]any{"prefix": "x"}, []Artifact{a}, WithRegistry(e.reg))
	require.NoError(t, err)
	y, err := NewScriptJob("join", script, map[string]any{"prefix": "y"}, []Artifact{a}, WithRegistry(e.reg))
	require.NoError(t, err)
	assert.NotEqual(t, mustHash(t, x.Output()), mustHash(t, y.Output()))
	assert.Equal(t, script, x.Script())
}

func TestScriptJob_Failure(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	script := e.scriptKind("fail", `assert(false, "bad input")`)
	repo := newTestRepo(t)

	j, err := NewScriptJob("fail", script, nil, nil, WithRegistry(e.reg))
	require.NoError(t, err)
	err = repo.Build(context.Background(), j.Output())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fail")

	_, err = repo.Path(j.Output())
	assert.ErrorIs(t, err, ErrNotMaterialized)
	assert.Empty(t, stagingDirs(t, repo.BaseDir()))
}

func TestNewScriptJob_RelativeScript(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	j, err := NewScriptJob("rel", "kinds/rel.risor", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "kinds", "rel.risor"), j.Script())
}

func TestNewScriptJob_NoWorkingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	require.NoError(t, os.Mkdir(dir, 0o755))
	t.Chdir(dir)
	require.NoError(t, os.Remove(dir))
	t.Setenv("PWD", "")
	if _, err := os.Getwd(); err == nil {
		t.Skip("platform still reports a working directory")
	}

	_, err := NewScriptJob("rel", "kinds/rel.risor", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kinds/rel.risor")

	// Absolute scripts need no working directory.
	j, err := NewScriptJob("abs", "/opt/kinds/abs.risor", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/kinds/abs.risor", j.Script())
}
