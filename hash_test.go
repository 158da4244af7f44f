package bisque

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecHash_Deterministic(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("tokenize")
	data := e.write("data.bin", "hello")

	f := NewFixedArtifact(data)
	o := e.job("tokenize", map[string]any{"lower": true}, f).NewOutput()

	first := mustHash(t, o)
	assert.Equal(t, first, mustHash(t, o))
	assert.Len(t, first.String(), 64)
}

func TestSecHash_ExampleScenario(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("a")
	data := e.write("data.bin", "\x00\x01\x02")

	f := NewFixedArtifact(data)
	o := e.job("a", nil, f).NewOutput()
	before := mustHash(t, o)

	// Rebuilding the same graph from scratch yields the same key.
	again := e.job("a", nil, NewFixedArtifact(data)).NewOutput()
	assert.Equal(t, before, mustHash(t, again))

	require.NoError(t, os.WriteFile(data, []byte("\x00\x01\x03"), 0o644))
	assert.NotEqual(t, before, mustHash(t, o))
}

func TestSecHash_IndependentOfDeclaration(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("left")
	e.kind("right")
	e.kind("join")
	data := e.write("data.bin", "x")

	build := func(leftFirst bool) *JobArtifact {
		f := NewFixedArtifact(data)
		var l, r *JobArtifact
		if leftFirst {
			l = e.job("left", nil, f).NewOutput()
			r = e.job("right", nil, f).NewOutput()
		} else {
			r = e.job("right", nil, f).NewOutput()
			l = e.job("left", nil, f).NewOutput()
		}
		return e.job("join", nil, l, r).NewOutput()
	}

	assert.Equal(t, mustHash(t, build(true)), mustHash(t, build(false)))
}

func TestSecHash_InputOrderMatters(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")
	a := NewFixedArtifact(e.write("a.txt", "a"))
	b := NewFixedArtifact(e.write("b.txt", "b"))

	ab := e.job("k", nil, a, b).NewOutput()
	ba := e.job("k", nil, b, a).NewOutput()
	assert.NotEqual(t, mustHash(t, ab), mustHash(t, ba))
}

func TestSecHash_DistinguishesKindsAndParams(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("x")
	e.kind("y")
	f := NewFixedArtifact(e.write("data.bin", "d"))

	hx := mustHash(t, e.job("x", map[string]any{"n": 1}, f).NewOutput())
	hy := mustHash(t, e.job("y", map[string]any{"n": 1}, f).NewOutput())
	hx2 := mustHash(t, e.job("x", map[string]any{"n": 2}, f).NewOutput())
	hxNil := mustHash(t, e.job("x", nil, f).NewOutput())

	assert.NotEqual(t, hx, hy)
	assert.NotEqual(t, hx, hx2)
	assert.NotEqual(t, hx, hxNil)
}

func TestSecHash_ExternalChangePropagates(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")
	data := e.write("data.bin", "v1")
	other := e.write("other.bin", "unrelated")

	f := NewFixedArtifact(data)
	j1 := e.job("k", map[string]any{"step": 1}, f)
	j2 := e.job("k", map[string]any{"step": 2}, j1.Output())
	leaf := j2.Output()

	beforeArtifact := mustHash(t, leaf)
	beforeJob := mustJobHash(t, j2)

	// A file no node wraps has no effect.
	require.NoError(t, os.WriteFile(other, []byte("changed"), 0o644))
	assert.Equal(t, beforeArtifact, mustHash(t, leaf))
	assert.Equal(t, beforeJob, mustJobHash(t, j2))

	require.NoError(t, os.WriteFile(data, []byte("v2"), 0o644))
	assert.NotEqual(t, beforeArtifact, mustHash(t, leaf))
	assert.NotEqual(t, beforeJob, mustJobHash(t, j2))
}

func TestSecHash_SourceChangePropagates(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	upstreamSrc := e.kind("upstream")
	downstreamSrc := e.kind("downstream")
	f := NewFixedArtifact(e.write("data.bin", "d"))

	up := e.job("upstream", nil, f)
	down := e.job("downstream", nil, up.Output())

	upHash := mustHash(t, up.Output())
	downHash := mustHash(t, down.Output())
	downJob := mustJobHash(t, down)

	// Editing the downstream kind changes its output but not the job key,
	// which does not cover the job's own sources.
	require.NoError(t, os.WriteFile(downstreamSrc, []byte("# v2\n"), 0o644))
	assert.Equal(t, upHash, mustHash(t, up.Output()))
	assert.NotEqual(t, downHash, mustHash(t, down.Output()))
	assert.Equal(t, downJob, mustJobHash(t, down))

	// Editing the upstream kind reaches everything downstream.
	downHash = mustHash(t, down.Output())
	require.NoError(t, os.WriteFile(upstreamSrc, []byte("# v2\n"), 0o644))
	assert.NotEqual(t, upHash, mustHash(t, up.Output()))
	assert.NotEqual(t, downHash, mustHash(t, down.Output()))
	assert.NotEqual(t, downJob, mustJobHash(t, down))
}

func TestSecHash_ScannedSources(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	outside := t.TempDir()
	extPath := filepath.Join(outside, "vendored.py")
	require.NoError(t, os.WriteFile(extPath, []byte("X = 1\n"), 0o644))

	helper := e.write("helper.py", "def f():\n    return 1\n")
	src := e.write("kinds/scanned.py", "import helper\nimport vendored\nimport os\n")
	require.NoError(t, e.reg.Register(KindSpec{Name: "scanned", Sources: []string{src}, Scan: true}))

	files, err := e.reg.SourceFiles("scanned")
	require.NoError(t, err)
	assert.Equal(t, []string{helper, src}, files)

	o := e.job("scanned", nil, NewFixedArtifact(e.write("data.bin", "d"))).NewOutput()
	before := mustHash(t, o)

	// Files outside the local roots are not part of the key.
	require.NoError(t, os.WriteFile(extPath, []byte("X = 2\n"), 0o644))
	assert.Equal(t, before, mustHash(t, o))

	require.NoError(t, os.WriteFile(helper, []byte("def f():\n    return 2\n"), 0o644))
	assert.NotEqual(t, before, mustHash(t, o))
}

func TestSecHash_SharedOutputs(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")
	f := NewFixedArtifact(e.write("data.bin", "d"))
	j := e.job("k", nil, f)

	a, b := j.NewOutput(), j.NewOutput()
	consumer1 := e.job("k", nil, a).NewOutput()
	consumer2 := e.job("k", nil, b).NewOutput()
	assert.Equal(t, mustHash(t, consumer1), mustHash(t, consumer2))
}

func TestSecHash_FixedArtifacts(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	p1 := e.write("one.txt", "same")
	p2 := e.write("two.txt", "same")

	// Path is part of a fixed artifact's structure.
	assert.NotEqual(t, mustHash(t, NewFixedArtifact(p1)), mustHash(t, NewFixedArtifact(p2)))
	assert.Equal(t, mustHash(t, NewFixedArtifact(p1)), mustHash(t, NewFixedArtifact(p1)))
}

func TestSecHash_FixedArtifactAtIgnoresCheckoutDir(t *testing.T) {
	t.Parallel()
	e1, e2 := newTestEnv(t), newTestEnv(t)
	e1.write("data/in.txt", "same")
	e2.write("data/in.txt", "same")

	a1 := NewFixedArtifactAt(e1.dir, "data/in.txt")
	a2 := NewFixedArtifactAt(e2.dir, "data/in.txt")
	assert.Equal(t, filepath.Join(e1.dir, "data", "in.txt"), a1.Path())
	assert.Equal(t, "data/in.txt", a1.Name())
	assert.Equal(t, mustHash(t, a1), mustHash(t, a2))

	// Downstream keys agree too.
	e1.kind("k")
	e2.kind("k")
	assert.Equal(t, mustHash(t, e1.job("k", nil, a1).Output()), mustHash(t, e2.job("k", nil, a2).Output()))

	e2.write("data/other.txt", "same")
	assert.NotEqual(t, mustHash(t, a1), mustHash(t, NewFixedArtifactAt(e2.dir, "data/other.txt")))

	abs := NewFixedArtifactAt(e2.dir, a1.Path())
	assert.Equal(t, a1.Path(), abs.Path())
	assert.Equal(t, mustHash(t, NewFixedArtifact(a1.Path())), mustHash(t, abs))
}

func TestSecHash_MissingFile(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")
	missing := filepath.Join(e.dir, "nope.bin")

	_, err := NewFixedArtifact(missing).SecHash()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	o := e.job("k", nil, NewFixedArtifact(missing)).NewOutput()
	_, err = o.SecHash()
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = o.Location("/base")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSecHash_MissingSource(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	src := e.kind("k")
	require.NoError(t, os.Remove(src))

	_, err := e.job("k", nil).NewOutput().SecHash()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSecHash_UnknownKind(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	_, err := e.job("ghost", nil).NewOutput().SecHash()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSecHash_UnhashableParams(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")

	j := e.job("k", map[string]any{"fn": func() {}})
	_, err := j.SecHash()
	assert.ErrorIs(t, err, ErrUnhashable)
	_, err = j.Output().SecHash()
	assert.ErrorIs(t, err, ErrUnhashable)
}

func TestJobSecHash_DiffersFromOutput(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	e.kind("k")
	j := e.job("k", nil, NewFixedArtifact(e.write("data.bin", "d")))

	assert.NotEqual(t, mustJobHash(t, j), mustHash(t, j.Output()))
}
