package bisque

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jward/bisque/internal/store"
)

// BuildRepo is the execution backend a job runs against.
type BuildRepo interface {
	// Path returns the readable location of a. It fails with
	// ErrNotMaterialized when a computed artifact has no result yet.
	Path(a Artifact) (string, error)

	// Materialize publishes out. write receives a private staging path to
	// create a file or directory at; once it returns nil the result is moved
	// to out's location in one rename. If write fails nothing is published.
	// Materializing an artifact that already exists is a no-op.
	Materialize(ctx context.Context, out *JobArtifact, write func(staging string) error) error
}

// LocalRepo is a BuildRepo keeping results on the local filesystem under
// baseDir/<secHash>. It runs missing jobs itself through Build.
type LocalRepo struct {
	baseDir    string
	logger     zerolog.Logger
	registerer prometheus.Registerer
	ledgerPath string
	parallel   int
	tracer     trace.Tracer

	metrics *buildMetrics
	ledger  *store.Store
	tokens  chan struct{}
	flight  singleflight.Group
}

var _ BuildRepo = (*LocalRepo)(nil)

// RepoOption configures a LocalRepo.
type RepoOption func(*LocalRepo)

// WithLogger sets the repo's logger. The default discards everything.
func WithLogger(l zerolog.Logger) RepoOption {
	return func(r *LocalRepo) {
		r.logger = l
	}
}

// WithMetrics registers the repo's collectors with reg.
func WithMetrics(reg prometheus.Registerer) RepoOption {
	return func(r *LocalRepo) {
		r.registerer = reg
	}
}

// WithTracerProvider traces job runs through tp instead of the global
// provider.
func WithTracerProvider(tp trace.TracerProvider) RepoOption {
	return func(r *LocalRepo) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// WithLedger records every published artifact in a SQLite database at
// dbPath.
func WithLedger(dbPath string) RepoOption {
	return func(r *LocalRepo) {
		r.ledgerPath = dbPath
	}
}

// WithParallelism bounds how many jobs run at once. Values below 1 mean
// runtime.NumCPU().
func WithParallelism(n int) RepoOption {
	return func(r *LocalRepo) {
		r.parallel = n
	}
}

// NewLocalRepo creates baseDir if needed and returns a repo over it.
func NewLocalRepo(baseDir string, opts ...RepoOption) (*LocalRepo, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("bisque: repo: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("bisque: repo: %w", err)
	}

	r := &LocalRepo{
		baseDir: abs,
		logger:  zerolog.Nop(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallel < 1 {
		r.parallel = runtime.NumCPU()
	}
	r.tokens = make(chan struct{}, r.parallel)

	r.metrics, err = newBuildMetrics(r.registerer)
	if err != nil {
		return nil, fmt.Errorf("bisque: repo metrics: %w", err)
	}
	if r.ledgerPath != "" {
		r.ledger, err = store.Open(r.ledgerPath)
		if err != nil {
			return nil, fmt.Errorf("bisque: repo ledger: %w", err)
		}
	}
	return r, nil
}

// Close releases the ledger database, if any.
func (r *LocalRepo) Close() error {
	if r.ledger == nil {
		return nil
	}
	return r.ledger.Close()
}

// BaseDir returns the absolute directory results are stored under.
func (r *LocalRepo) BaseDir() string {
	return r.baseDir
}

func (r *LocalRepo) Path(a Artifact) (string, error) {
	loc, err := a.Location(r.baseDir)
	if err != nil {
		return "", err
	}
	if _, ok := a.(*JobArtifact); ok && !exists(loc) {
		return "", fmt.Errorf("%w: %s", ErrNotMaterialized, a)
	}
	return loc, nil
}

func (r *LocalRepo) Materialize(ctx context.Context, out *JobArtifact, write func(staging string) error) error {
	hash, err := out.SecHash()
	if err != nil {
		return err
	}
	loc := filepath.Join(r.baseDir, hash.String())
	if exists(loc) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.MkdirTemp(r.baseDir, ".staging-")
	if err != nil {
		return fmt.Errorf("bisque: materialize %s: %w", out, err)
	}
	defer os.RemoveAll(tmp)

	staging := filepath.Join(tmp, "out")
	if err := write(staging); err != nil {
		return fmt.Errorf("bisque: materialize %s: %w", out, err)
	}
	if _, err := os.Lstat(staging); err != nil {
		return fmt.Errorf("bisque: materialize %s: nothing written: %w", out, err)
	}
	if err := os.Rename(staging, loc); err != nil {
		if exists(loc) {
			// Another process published the same key first.
			return nil
		}
		return fmt.Errorf("bisque: materialize %s: %w", out, err)
	}

	r.logger.Debug().Str("kind", out.Job().Kind()).Str("hash", hash.Short()).Msg("published artifact")
	return r.record(out, hash, loc)
}

func (r *LocalRepo) record(out *JobArtifact, hash Digest, loc string) error {
	if r.ledger == nil {
		return nil
	}
	job := out.Job()
	jobHash, err := job.SecHash()
	if err != nil {
		return err
	}
	rec := &store.ArtifactRecord{
		Hash:       hash.String(),
		Kind:       job.Kind(),
		JobHash:    jobHash.String(),
		Location:   loc,
		RecordedAt: time.Now(),
	}
	for i, in := range job.Inputs() {
		h, err := in.SecHash()
		if err != nil {
			return err
		}
		inLoc, err := in.Location(r.baseDir)
		if err != nil {
			return err
		}
		rec.Inputs = append(rec.Inputs, store.InputRecord{Ordinal: i, Hash: h.String(), Location: inLoc})
	}
	if err := r.ledger.RecordArtifact(rec); err != nil {
		return fmt.Errorf("bisque: ledger: %w", err)
	}
	return nil
}

// Build makes every target available, running each missing job once after
// its inputs. Independent jobs run concurrently.
func (r *LocalRepo) Build(ctx context.Context, targets ...Artifact) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			return r.ensure(gctx, t)
		})
	}
	return g.Wait()
}

func (r *LocalRepo) ensure(ctx context.Context, a Artifact) error {
	switch a := a.(type) {
	case *FixedArtifact:
		if _, err := os.Stat(a.Path()); err != nil {
			return fmt.Errorf("bisque: input %s: %w", a, err)
		}
		return nil
	case *JobArtifact:
		return r.buildJob(ctx, a.Job())
	}
	return fmt.Errorf("bisque: unsupported artifact %T", a)
}

// buildJob collapses concurrent requests for the same output key into one
// run.
func (r *LocalRepo) buildJob(ctx context.Context, j Job) error {
	hash, err := j.Output().SecHash()
	if err != nil {
		return err
	}
	_, err, _ = r.flight.Do(hash.String(), func() (any, error) {
		return nil, r.runJob(ctx, j, hash)
	})
	return err
}

func (r *LocalRepo) runJob(ctx context.Context, j Job, hash Digest) (err error) {
	ctx, span := r.tracer.Start(ctx, "bisque.job", trace.WithAttributes(
		attribute.String("job.kind", j.Kind()),
		attribute.String("job.output", hash.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	log := r.logger.With().Str("kind", j.Kind()).Str("hash", hash.Short()).Logger()
	loc := filepath.Join(r.baseDir, hash.String())
	if exists(loc) {
		r.metrics.recordCacheHit(j.Kind())
		span.SetAttributes(attribute.Bool("job.cached", true))
		log.Debug().Msg("cache hit")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, in := range j.Inputs() {
		g.Go(func() error {
			return r.ensure(gctx, in)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Parents are done; a token is held only around Run.
	if err := acquireToken(ctx, r.tokens); err != nil {
		return err
	}
	defer func() { <-r.tokens }()

	log.Info().Msg("running job")
	span.AddEvent("run")
	start := time.Now()
	err = j.Run(ctx, r)
	r.metrics.recordRun(j.Kind(), err, time.Since(start))
	if err != nil {
		log.Error().Err(err).Msg("job failed")
		return fmt.Errorf("bisque: run %s: %w", j.Kind(), err)
	}
	if !exists(loc) {
		return fmt.Errorf("%w: %s", ErrNoOutput, j.Kind())
	}
	log.Info().Dur("took", time.Since(start)).Msg("job finished")
	return nil
}

// PlanStep describes one job of a build plan.
type PlanStep struct {
	Job      Job
	Hash     Digest // key of the job's output
	Location string
	Cached   bool
}

// Plan lists the jobs needed for targets, parents before children, and
// whether each output already exists.
func (r *LocalRepo) Plan(targets ...Artifact) ([]PlanStep, error) {
	var steps []PlanStep
	for _, j := range AncestorJobs(targets) {
		hash, err := j.Output().SecHash()
		if err != nil {
			return nil, err
		}
		loc := filepath.Join(r.baseDir, hash.String())
		steps = append(steps, PlanStep{Job: j, Hash: hash, Location: loc, Cached: exists(loc)})
	}
	return steps, nil
}

// Ledger returns the repo's open ledger, or nil without WithLedger. The
// repo owns the handle; Close closes it.
func (r *LocalRepo) Ledger() *Ledger {
	return r.ledger
}

// Record returns the ledger entry for hash, or nil if it was never
// published.
func (r *LocalRepo) Record(hash Digest) (*ArtifactRecord, error) {
	if r.ledger == nil {
		return nil, ErrNoLedger
	}
	return r.ledger.ArtifactByHash(hash.String())
}

// Records lists ledger entries, restricted to kind unless it is empty.
func (r *LocalRepo) Records(kind string) ([]*ArtifactRecord, error) {
	if r.ledger == nil {
		return nil, ErrNoLedger
	}
	return r.ledger.Artifacts(kind)
}

// acquireToken acquires a token from the semaphore, respecting context cancellation.
func acquireToken(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const tracerName = "github.com/jward/bisque"

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
