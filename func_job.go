package bisque

import (
	"context"
	"fmt"
)

// RunFunc computes a job's result. inputs holds the readable location of
// each input in order; output is the staging path to create.
type RunFunc func(ctx context.Context, inputs []string, output string) error

// FuncJob is a job kind whose computation is a Go function.
type FuncJob struct {
	*JobBase
	params map[string]any
	fn     RunFunc
}

var _ Job = (*FuncJob)(nil)

// NewFuncJob returns a job of kind running fn over inputs. params identify
// the computation alongside the kind and must have a canonical encoding
// (see HashValue). A nil fn yields a job whose Run fails with
// ErrNotImplemented.
func NewFuncJob(kind string, params map[string]any, fn RunFunc, inputs []Artifact, opts ...JobOption) *FuncJob {
	j := &FuncJob{params: params, fn: fn}
	j.JobBase = NewJobBase(j, kind, inputs, opts...)
	return j
}

// Params returns the job's parameters.
func (j *FuncJob) Params() map[string]any {
	return j.params
}

func (j *FuncJob) EncodeParams(enc *Encoder) error {
	if j.params == nil {
		enc.Nil()
		return enc.Err()
	}
	return enc.Value(j.params)
}

func (j *FuncJob) Run(ctx context.Context, repo BuildRepo) error {
	if j.fn == nil {
		return fmt.Errorf("%w: %s has no run function", ErrNotImplemented, j.Kind())
	}
	paths, err := inputPaths(repo, j.Inputs())
	if err != nil {
		return err
	}
	return repo.Materialize(ctx, j.Output(), func(staging string) error {
		return j.fn(ctx, paths, staging)
	})
}

func inputPaths(repo BuildRepo, inputs []Artifact) ([]string, error) {
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		p, err := repo.Path(in)
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}
