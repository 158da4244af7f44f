package bisque

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jward/bisque/internal/runtime"
)

// ScriptJob is a job kind whose computation is a Risor script. The script
// sees the globals inputs (list of input paths), output (the staging path
// to create) and params, along with the host functions documented in
// internal/runtime. Scripts may import other .risor files from their own
// directory.
type ScriptJob struct {
	*JobBase
	script string
	params map[string]any
}

var _ Job = (*ScriptJob)(nil)

// NewScriptJob returns a job of kind that runs script over inputs. A
// relative script is resolved against the working directory now; this
// fails only when the working directory cannot be determined. The script
// file itself is not part of the job's identity: list it in the kind's
// manifest so edits to it change the outputs' keys.
func NewScriptJob(kind, script string, params map[string]any, inputs []Artifact, opts ...JobOption) (*ScriptJob, error) {
	abs, err := filepath.Abs(script)
	if err != nil {
		return nil, fmt.Errorf("bisque: script %s: %w", script, err)
	}
	j := &ScriptJob{script: abs, params: params}
	j.JobBase = NewJobBase(j, kind, inputs, opts...)
	return j, nil
}

// Script returns the absolute script path.
func (j *ScriptJob) Script() string {
	return j.script
}

// EncodeParams covers the script's name within its kind and the
// parameters. The script's contents enter through the kind manifest.
func (j *ScriptJob) EncodeParams(enc *Encoder) error {
	enc.String(filepath.Base(j.script))
	if j.params == nil {
		enc.Nil()
		return enc.Err()
	}
	return enc.Value(j.params)
}

func (j *ScriptJob) Run(ctx context.Context, repo BuildRepo) error {
	paths, err := inputPaths(repo, j.Inputs())
	if err != nil {
		return err
	}
	vm := runtime.New(filepath.Dir(j.script), runtime.WithLogger(j.Logger().With().Str("kind", j.Kind()).Logger()))
	return repo.Materialize(ctx, j.Output(), func(staging string) error {
		err := vm.RunJob(ctx, j.script, runtime.Job{Inputs: paths, Output: staging, Params: j.params})
		if err != nil {
			return fmt.Errorf("%s: %w", j.Kind(), err)
		}
		return nil
	})
}
