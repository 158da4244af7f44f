// Package bisque gives every input datum and every computed result of a
// batch pipeline a reproducible provenance key, so identical computations
// are recognised wherever they are declared and never run twice.
//
// # Graph
//
// A pipeline is a DAG of two node kinds:
//
//   - [FixedArtifact] wraps an existing file the library does not manage.
//   - [Job] consumes an ordered list of artifacts and produces
//     [JobArtifact] outputs through [Job.NewOutput].
//
// Nodes are compared by identity ([NodeID]), never by structure: two jobs
// built from the same arguments are distinct nodes that happen to share a
// provenance key.
//
// # Provenance keys
//
// [Artifact.SecHash] combines three things:
//
//  1. The artifact's structure: a fixed file's name, or the producing job's
//     kind, parameters and the keys of its inputs in order. Use
//     [NewFixedArtifactAt] to key a file by a path relative to a project
//     directory.
//  2. The content hash of every fixed file in the artifact's ancestry.
//  3. The content hash of the source files defining the producing job's
//     kind, as declared in a [Registry].
//
// Editing a data file or a job kind's source therefore changes the key of
// everything downstream, while rebuilding the same graph from scratch
// reproduces the same keys.
//
// # Usage
//
// Register each job kind's source manifest, declare the graph and build:
//
//	bisque.MustRegister(bisque.KindSpec{
//		Name:    "tokenize",
//		Sources: []string{"kinds/tokenize.risor"},
//	})
//
//	corpus := bisque.NewFixedArtifact("data/corpus.txt")
//	tok, err := bisque.NewScriptJob("tokenize", "kinds/tokenize.risor", nil, []bisque.Artifact{corpus})
//	if err != nil { ... }
//
//	repo, err := bisque.NewLocalRepo("build")
//	if err != nil { ... }
//	defer repo.Close()
//
//	err = repo.Build(ctx, tok.Output())
//	path, err := repo.Path(tok.Output())
//
// # Build repositories
//
// [LocalRepo] stores each result at baseDir/<key>. A job writes to a private
// staging path handed out by [BuildRepo.Materialize] and the result is
// published with one rename, so a location either holds a complete result
// or nothing. [LocalRepo.Build] runs missing jobs parents first, runs
// independent jobs concurrently and runs each key at most once. Every job
// it considers gets an OpenTelemetry span; see [WithTracerProvider].
//
// # Job kinds
//
// [FuncJob] runs a Go function. [ScriptJob] runs a Risor script that sees
// its inputs, output and params as globals. Other kinds embed [*JobBase]
// and implement [Job.EncodeParams] and [Job.Run].
package bisque
