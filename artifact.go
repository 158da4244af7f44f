package bisque

import (
	"fmt"
	"path/filepath"
)

// Artifact is a data node of the computation graph: either a FixedArtifact
// wrapping an external file or a JobArtifact produced by a Job.
type Artifact interface {
	// ID returns the node's identity handle.
	ID() NodeID

	// SecHash returns the provenance key of the artifact. It reads every
	// fixed file and source file in the artifact's ancestry and fails if
	// any of them is missing or unreadable.
	SecHash() (Digest, error)

	// ParentJobs returns the job that produces the artifact, if any.
	ParentJobs() []Job

	// ParentArtifacts returns the artifacts the artifact is computed from.
	ParentArtifacts() []Artifact

	// Location returns where the artifact's data lives. Fixed artifacts
	// ignore baseDir.
	Location(baseDir string) (string, error)

	String() string

	// structure writes the node's own structural identity.
	structure(s *hashSession, enc *Encoder) error
	// externals returns the digests of data the node wraps directly.
	externals(s *hashSession) ([]Digest, error)
	// sources returns the digests of the code that computes the node.
	sources(s *hashSession) ([]Digest, error)
}

// FixedArtifact wraps an existing file that bisque does not manage.
type FixedArtifact struct {
	id   NodeID
	path string
	name string // structural identity
}

var _ Artifact = (*FixedArtifact)(nil)

// NewFixedArtifact returns a leaf artifact for path. The path is recorded
// as given; it is not resolved or checked until the artifact is hashed.
func NewFixedArtifact(path string) *FixedArtifact {
	return &FixedArtifact{id: newNodeID(), path: path, name: path}
}

// NewFixedArtifactAt returns a leaf artifact for rel under dir. Only rel
// enters the provenance key, so the same tree checked out in two places
// yields the same keys. An absolute rel ignores dir.
func NewFixedArtifactAt(dir, rel string) *FixedArtifact {
	if filepath.IsAbs(rel) {
		return NewFixedArtifact(rel)
	}
	return &FixedArtifact{
		id:   newNodeID(),
		path: filepath.Join(dir, rel),
		name: filepath.ToSlash(filepath.Clean(rel)),
	}
}

func (a *FixedArtifact) ID() NodeID { return a.id }
func (a *FixedArtifact) Path() string { return a.path }

// Name returns the path the artifact is keyed by.
func (a *FixedArtifact) Name() string { return a.name }

func (a *FixedArtifact) ParentJobs() []Job { return nil }
func (a *FixedArtifact) ParentArtifacts() []Artifact { return nil }
func (a *FixedArtifact) Location(string) (string, error) { return a.path, nil }

func (a *FixedArtifact) String() string {
	return fmt.Sprintf("fixed(%s)", a.path)
}

func (a *FixedArtifact) SecHash() (Digest, error) {
	return newHashSession().artifactHash(a)
}

func (a *FixedArtifact) structure(_ *hashSession, enc *Encoder) error {
	enc.String("fixed")
	enc.String(a.name)
	return enc.Err()
}

func (a *FixedArtifact) externals(s *hashSession) ([]Digest, error) {
	d, err := s.fileDigest(a.path)
	if err != nil {
		return nil, fmt.Errorf("bisque: fixed artifact %s: %w", a.path, err)
	}
	return []Digest{d}, nil
}

func (a *FixedArtifact) sources(*hashSession) ([]Digest, error) {
	return nil, nil
}

// JobArtifact is an output of exactly one Job. Create one with
// Job.NewOutput.
type JobArtifact struct {
	id  NodeID
	job Job
}

var _ Artifact = (*JobArtifact)(nil)

func (a *JobArtifact) ID() NodeID { return a.id }
func (a *JobArtifact) Job() Job { return a.job }

func (a *JobArtifact) ParentJobs() []Job {
	return []Job{a.job}
}

func (a *JobArtifact) ParentArtifacts() []Artifact {
	return a.job.Inputs()
}

func (a *JobArtifact) String() string {
	return fmt.Sprintf("%s:%s", a.job.Kind(), a.id.String()[:8])
}

func (a *JobArtifact) SecHash() (Digest, error) {
	return newHashSession().artifactHash(a)
}

// Location returns baseDir/<secHash>.
func (a *JobArtifact) Location(baseDir string) (string, error) {
	h, err := a.SecHash()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, h.String()), nil
}

func (a *JobArtifact) structure(s *hashSession, enc *Encoder) error {
	enc.String("computed")
	d, err := s.jobStructure(a.job)
	if err != nil {
		return err
	}
	enc.Digest(d)
	return enc.Err()
}

func (a *JobArtifact) externals(*hashSession) ([]Digest, error) {
	return nil, nil
}

func (a *JobArtifact) sources(s *hashSession) ([]Digest, error) {
	b := a.job.base()
	return s.sourceDigests(b.registry, b.kind)
}
