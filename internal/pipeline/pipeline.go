// Package pipeline builds an artifact graph from a YAML declaration.
//
// A pipeline file names fixed input files, a list of script jobs and the
// targets to build:
//
//	artifacts:
//	  corpus: data/corpus.txt
//	jobs:
//	  - name: counts
//	    kind: count-words
//	    script: scripts/count.risor
//	    sources: [scripts/lib.risor]
//	    inputs: [corpus]
//	    params: {min: 2}
//	targets: [counts]
//
// Each job becomes a bisque.ScriptJob whose single output is known by the
// job's name. A job's inputs may only name artifacts or jobs declared
// before it, so every pipeline is acyclic by construction. Paths are
// relative to the pipeline file.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jward/bisque"
)

// ErrUnknownTarget is returned by Targets for a name the pipeline does not
// declare.
var ErrUnknownTarget = errors.New("pipeline: unknown target")

// File is the YAML form of a pipeline.
type File struct {
	Artifacts map[string]string `yaml:"artifacts" validate:"dive,keys,required,endkeys,required"`
	Jobs      []JobDecl         `yaml:"jobs" validate:"dive"`
	Targets   []string          `yaml:"targets"`
}

// JobDecl declares one script job.
type JobDecl struct {
	Name   string `yaml:"name" validate:"required"`
	Kind   string `yaml:"kind" validate:"required"`
	Script string `yaml:"script" validate:"required"`

	// Sources are extra files defining the kind, such as modules the
	// script imports.
	Sources []string `yaml:"sources"`

	// Scan adds files the script and sources import from local roots.
	Scan bool `yaml:"scan"`

	Inputs []string       `yaml:"inputs"`
	Params map[string]any `yaml:"params"`
}

// Pipeline is a loaded artifact graph.
type Pipeline struct {
	dir      string
	registry *bisque.Registry
	named    map[string]bisque.Artifact
	jobs     []*bisque.ScriptJob
	jobNames []string
	targets  []string
}

// Option configures how a pipeline is built.
type Option func(*options)

type options struct {
	scanner bisque.Scanner
	logger  zerolog.Logger
}

// WithScanner sets the scanner used for jobs declared with scan: true.
func WithScanner(sc bisque.Scanner) Option {
	return func(o *options) {
		o.scanner = sc
	}
}

// WithLogger sets the logger handed to every job.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Load reads and builds the pipeline at path.
func Load(path string, opts ...Option) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return Parse(data, filepath.Dir(abs), opts...)
}

// Parse builds a pipeline from YAML, resolving relative paths against dir.
func Parse(data []byte, dir string, opts ...Option) (*Pipeline, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("pipeline: parse: %w", err)
	}
	return Build(&f, dir, opts...)
}

// Build turns a decoded pipeline file into a graph.
func Build(f *File, dir string, opts ...Option) (*Pipeline, error) {
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("pipeline: invalid: %w", err)
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	var regOpts []bisque.RegistryOption
	if o.scanner != nil {
		regOpts = append(regOpts, bisque.WithScanner(o.scanner))
	}

	p := &Pipeline{
		dir:      dir,
		registry: bisque.NewRegistry(regOpts...),
		named:    make(map[string]bisque.Artifact),
		targets:  f.Targets,
	}

	names := make([]string, 0, len(f.Artifacts))
	for name := range f.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.named[name] = bisque.NewFixedArtifactAt(p.dir, f.Artifacts[name])
	}

	declared := make(map[string]bool, len(f.Jobs))
	for _, decl := range f.Jobs {
		declared[decl.Name] = true
	}

	for _, decl := range f.Jobs {
		if _, dup := p.named[decl.Name]; dup {
			return nil, fmt.Errorf("pipeline: duplicate name %q", decl.Name)
		}

		inputs := make([]bisque.Artifact, 0, len(decl.Inputs))
		for _, in := range decl.Inputs {
			a, ok := p.named[in]
			switch {
			case ok:
				inputs = append(inputs, a)
			case declared[in]:
				return nil, fmt.Errorf("pipeline: job %s: input %q is declared later", decl.Name, in)
			default:
				return nil, fmt.Errorf("pipeline: job %s: unknown input %q", decl.Name, in)
			}
		}

		script := p.path(decl.Script)
		sources := []string{script}
		for _, s := range decl.Sources {
			sources = append(sources, p.path(s))
		}
		spec := bisque.KindSpec{Name: decl.Kind, Sources: sources, Scan: decl.Scan}
		if err := p.registry.Register(spec); err != nil {
			return nil, fmt.Errorf("pipeline: job %s: %w", decl.Name, err)
		}

		j, err := bisque.NewScriptJob(decl.Kind, script, decl.Params, inputs,
			bisque.WithRegistry(p.registry),
			bisque.WithJobLogger(o.logger.With().Str("job", decl.Name).Logger()),
		)
		if err != nil {
			return nil, fmt.Errorf("pipeline: job %s: %w", decl.Name, err)
		}
		p.named[decl.Name] = j.Output()
		p.jobs = append(p.jobs, j)
		p.jobNames = append(p.jobNames, decl.Name)
	}

	for _, t := range f.Targets {
		if _, ok := p.named[t]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, t)
		}
	}
	return p, nil
}

func (p *Pipeline) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.dir, rel)
}

// Dir returns the directory relative paths were resolved against.
func (p *Pipeline) Dir() string { return p.dir }

// Registry returns the pipeline's private kind registry.
func (p *Pipeline) Registry() *bisque.Registry { return p.registry }

// Lookup returns the artifact known by name: a declared fixed artifact or
// the output of the job of that name.
func (p *Pipeline) Lookup(name string) (bisque.Artifact, bool) {
	a, ok := p.named[name]
	return a, ok
}

// Jobs returns the pipeline's jobs in declaration order.
func (p *Pipeline) Jobs() []*bisque.ScriptJob {
	return append([]*bisque.ScriptJob(nil), p.jobs...)
}

// JobName returns the declared name of j, or "" if j is not part of the
// pipeline.
func (p *Pipeline) JobName(j bisque.Job) string {
	for i, pj := range p.jobs {
		if pj.ID() == j.ID() {
			return p.jobNames[i]
		}
	}
	return ""
}

// Files lists the files the pipeline's keys depend on: fixed artifacts and
// the sources of every kind. The result is sorted.
func (p *Pipeline) Files() ([]string, error) {
	var files []string
	for _, a := range p.named {
		if fa, ok := a.(*bisque.FixedArtifact); ok {
			files = append(files, fa.Path())
		}
	}
	for _, kind := range p.registry.Kinds() {
		srcs, err := p.registry.SourceFiles(kind)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		files = append(files, srcs...)
	}
	sort.Strings(files)
	return slices.Compact(files), nil
}

// Targets resolves names to artifacts. With no names it returns the
// declared targets, or every job output when none are declared.
func (p *Pipeline) Targets(names ...string) ([]bisque.Artifact, error) {
	if len(names) == 0 {
		names = p.targets
	}
	if len(names) == 0 {
		names = p.jobNames
	}
	out := make([]bisque.Artifact, 0, len(names))
	for _, n := range names {
		a, ok := p.named[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, n)
		}
		out = append(out, a)
	}
	return out, nil
}
