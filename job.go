package bisque

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Job is a computation node. It consumes an ordered, immutable list of input
// artifacts and produces JobArtifacts.
//
// Concrete kinds embed *JobBase, created with NewJobBase, and supply
// EncodeParams and Run.
type Job interface {
	ID() NodeID
	Kind() string
	Inputs() []Artifact

	// ParentJobs returns the jobs that must complete before this one can
	// run: every job producing one of the inputs, each listed once.
	ParentJobs() []Job

	// NewOutput creates a new artifact owned by the job. All outputs of a
	// job share its provenance and therefore its location.
	NewOutput() *JobArtifact

	// Output returns the first output created, creating it if needed.
	Output() *JobArtifact

	// SecHash identifies this exact computation over these exact inputs.
	// It does not cover the kind's own source files.
	SecHash() (Digest, error)

	// EncodeParams writes the job's parameters in canonical form.
	EncodeParams(enc *Encoder) error

	// Run computes the job's output. It is called only after every input
	// is materialized, and must publish through repo.Materialize so the
	// output appears completely or not at all.
	Run(ctx context.Context, repo BuildRepo) error

	base() *JobBase
}

// JobOption configures a JobBase.
type JobOption func(*JobBase)

// WithRegistry sets the registry that holds the job kind's source manifest.
// The default is DefaultRegistry.
func WithRegistry(r *Registry) JobOption {
	return func(b *JobBase) {
		b.registry = r
	}
}

// WithJobLogger sets the logger a job kind reports progress to. The
// default discards everything.
func WithJobLogger(l zerolog.Logger) JobOption {
	return func(b *JobBase) {
		b.logger = l
	}
}

// JobBase carries the state shared by every job kind.
type JobBase struct {
	id       NodeID
	self     Job
	kind     string
	inputs   []Artifact
	registry *Registry
	logger   zerolog.Logger

	mu      sync.Mutex
	outputs []*JobArtifact
}

// NewJobBase returns the base for self, the concrete job embedding it.
// inputs is copied.
func NewJobBase(self Job, kind string, inputs []Artifact, opts ...JobOption) *JobBase {
	b := &JobBase{
		id:       newNodeID(),
		self:     self,
		kind:     kind,
		inputs:   append([]Artifact(nil), inputs...),
		registry: DefaultRegistry,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *JobBase) ID() NodeID { return b.id }
func (b *JobBase) Kind() string { return b.kind }
func (b *JobBase) base() *JobBase { return b }

// Registry returns the registry the job's kind is looked up in.
func (b *JobBase) Registry() *Registry { return b.registry }

// Logger returns the job's logger.
func (b *JobBase) Logger() zerolog.Logger { return b.logger }

func (b *JobBase) Inputs() []Artifact {
	return append([]Artifact(nil), b.inputs...)
}

func (b *JobBase) ParentJobs() []Job {
	seen := make(map[NodeID]bool)
	var jobs []Job
	for _, in := range b.inputs {
		for _, j := range in.ParentJobs() {
			if seen[j.ID()] {
				continue
			}
			seen[j.ID()] = true
			jobs = append(jobs, j)
		}
	}
	return jobs
}

func (b *JobBase) NewOutput() *JobArtifact {
	out := &JobArtifact{id: newNodeID(), job: b.self}
	b.mu.Lock()
	b.outputs = append(b.outputs, out)
	b.mu.Unlock()
	return out
}

func (b *JobBase) Output() *JobArtifact {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.outputs) == 0 {
		b.outputs = append(b.outputs, &JobArtifact{id: newNodeID(), job: b.self})
	}
	return b.outputs[0]
}

// Outputs returns every output created so far, in creation order.
func (b *JobBase) Outputs() []*JobArtifact {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*JobArtifact(nil), b.outputs...)
}

func (b *JobBase) SecHash() (Digest, error) {
	return newHashSession().jobHash(b.self)
}
