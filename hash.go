package bisque

import (
	"fmt"
	"slices"

	"github.com/jward/bisque/internal/sechash"
)

// hashSession memoizes digests for the duration of one SecHash call so a
// shared ancestor is hashed once per call. Nothing survives the call: every
// SecHash rereads the files it depends on.
type hashSession struct {
	files     map[string]Digest
	artifacts map[NodeID]Digest
	jobs      map[NodeID]Digest
	kinds     map[kindKey][]Digest
}

type kindKey struct {
	reg  *Registry
	kind string
}

func newHashSession() *hashSession {
	return &hashSession{
		files:     make(map[string]Digest),
		artifacts: make(map[NodeID]Digest),
		jobs:      make(map[NodeID]Digest),
		kinds:     make(map[kindKey][]Digest),
	}
}

func (s *hashSession) fileDigest(path string) (Digest, error) {
	if d, ok := s.files[path]; ok {
		return d, nil
	}
	d, err := sechash.HashFile(path)
	if err != nil {
		return "", err
	}
	s.files[path] = d
	return d, nil
}

func (s *hashSession) sourceDigests(reg *Registry, kind string) ([]Digest, error) {
	key := kindKey{reg, kind}
	if ds, ok := s.kinds[key]; ok {
		return ds, nil
	}
	ds, err := reg.SourceDigests(kind)
	if err != nil {
		return nil, err
	}
	s.kinds[key] = ds
	return ds, nil
}

// externalDigests collects the externality digests of every artifact in
// AncestorArtifacts(initial). The result is sorted, so it depends only on
// the multiset of digests and not on traversal order.
func (s *hashSession) externalDigests(initial []Artifact) ([]Digest, error) {
	var all []Digest
	for _, a := range AncestorArtifacts(initial) {
		ds, err := a.externals(s)
		if err != nil {
			return nil, err
		}
		all = append(all, ds...)
	}
	slices.Sort(all)
	return all, nil
}

// artifactHash combines the artifact's structure, the externals of its
// ancestry and its own source digests.
func (s *hashSession) artifactHash(a Artifact) (Digest, error) {
	if d, ok := s.artifacts[a.ID()]; ok {
		return d, nil
	}

	enc := sechash.NewEncoder()
	enc.String("artifact")
	enc.Sub(func(sub *Encoder) error {
		return a.structure(s, sub)
	})
	if err := enc.Err(); err != nil {
		return "", err
	}

	ext, err := s.externalDigests([]Artifact{a})
	if err != nil {
		return "", err
	}
	enc.Digests(ext)

	src, err := a.sources(s)
	if err != nil {
		return "", err
	}
	enc.Digests(src)

	d, err := enc.Sum()
	if err != nil {
		return "", err
	}
	s.artifacts[a.ID()] = d
	return d, nil
}

// jobStructure encodes the job's kind, parameters and the provenance keys
// of its inputs in order. Input keys carry upstream source digests, so an
// edit to an upstream kind reaches every downstream job.
func (s *hashSession) jobStructure(j Job) (Digest, error) {
	if d, ok := s.jobs[j.ID()]; ok {
		return d, nil
	}

	enc := sechash.NewEncoder()
	enc.String("job")
	enc.String(j.Kind())
	enc.Sub(j.EncodeParams)
	if err := enc.Err(); err != nil {
		return "", fmt.Errorf("bisque: %s params: %w", j.Kind(), err)
	}

	inputs := j.Inputs()
	enc.List(len(inputs))
	for _, in := range inputs {
		d, err := s.artifactHash(in)
		if err != nil {
			return "", err
		}
		enc.Digest(d)
	}

	d, err := enc.Sum()
	if err != nil {
		return "", err
	}
	s.jobs[j.ID()] = d
	return d, nil
}

// jobHash combines the job's structure with the externals reachable from
// its inputs. The job's own source digests are left out.
func (s *hashSession) jobHash(j Job) (Digest, error) {
	structure, err := s.jobStructure(j)
	if err != nil {
		return "", err
	}
	ext, err := s.externalDigests(j.Inputs())
	if err != nil {
		return "", err
	}

	enc := sechash.NewEncoder()
	enc.String("jobhash")
	enc.Digest(structure)
	enc.Digests(ext)
	return enc.Sum()
}
