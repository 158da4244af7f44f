package bisque

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_InputsAreCopied(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")

	a, b := NewFixedArtifact("a"), NewFixedArtifact("b")
	inputs := []Artifact{a, b}
	j := e.job("k", nil, inputs...)

	inputs[0] = b
	assert.Equal(t, []NodeID{a.ID(), b.ID()}, ids(j.Inputs()))

	got := j.Inputs()
	got[1] = a
	assert.Equal(t, []NodeID{a.ID(), b.ID()}, ids(j.Inputs()))
}

func TestJob_NewOutput(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")

	a := NewFixedArtifact(e.write("a.txt", "a"))
	j := e.job("k", nil, a)

	o1 := j.NewOutput()
	o2 := j.NewOutput()
	assert.NotEqual(t, o1.ID(), o2.ID())
	assert.Same(t, j, o1.Job().(*FuncJob))
	assert.Same(t, j, o2.Job().(*FuncJob))
	assert.Equal(t, []NodeID{a.ID()}, ids(o1.ParentArtifacts()))
	assert.Equal(t, []NodeID{j.ID()}, ids(o2.ParentJobs()))

	// Provenance-indistinguishable: same key, same location.
	assert.Equal(t, mustHash(t, o1), mustHash(t, o2))
	l1, err := o1.Location("/base")
	require.NoError(t, err)
	l2, err := o2.Location("/base")
	require.NoError(t, err)
	assert.Equal(t, l1, l2)

	assert.Equal(t, []NodeID{o1.ID(), o2.ID()}, ids(j.Outputs()))
}

func TestJob_OutputIsFirst(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")

	j := e.job("k", nil)
	first := j.Output()
	assert.Same(t, first, j.Output())

	j2 := e.job("k", nil)
	made := j2.NewOutput()
	assert.Same(t, made, j2.Output())
}

func TestJob_ParentJobs(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")

	f := NewFixedArtifact("f")
	j1 := e.job("k", map[string]any{"n": 1}, f)
	j2 := e.job("k", map[string]any{"n": 2}, f)
	j3 := e.job("k", nil, j1.NewOutput(), j2.NewOutput(), f)

	assert.ElementsMatch(t, []NodeID{j1.ID(), j2.ID()}, ids(j3.ParentJobs()))
	assert.Empty(t, j1.ParentJobs())
}

func TestJob_ParentJobsDeduplicated(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")

	j1 := e.job("k", nil, NewFixedArtifact("f"))
	j2 := e.job("k", nil, j1.NewOutput(), j1.NewOutput(), j1.Output())

	assert.Equal(t, []NodeID{j1.ID()}, ids(j2.ParentJobs()))
}

func TestFixedArtifact(t *testing.T) {
	t.Parallel()
	a := NewFixedArtifact("/data/corpus.txt")

	assert.Empty(t, a.ParentJobs())
	assert.Empty(t, a.ParentArtifacts())
	loc, err := a.Location("/ignored")
	require.NoError(t, err)
	assert.Equal(t, "/data/corpus.txt", loc)
	assert.Equal(t, "fixed(/data/corpus.txt)", a.String())
}

func TestFuncJob_NilFunc(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("abstract")

	repo, err := NewLocalRepo(t.TempDir())
	require.NoError(t, err)

	j := NewFuncJob("abstract", nil, nil, nil, WithRegistry(e.reg))
	err = j.Run(context.Background(), repo)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotImplemented)
}
