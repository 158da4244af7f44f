package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jward/bisque"
	"github.com/jward/bisque/internal/pipeline"
	"github.com/jward/bisque/internal/scan"
	"github.com/jward/bisque/internal/store"
	"github.com/jward/bisque/internal/watch"
)

var hashCmd = &cobra.Command{
	Use:   "hash FILE...",
	Short: "Print the content hash of files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out []CLIFileHash
		for _, p := range args {
			d, err := bisque.HashFile(p)
			if err != nil {
				return outputError(cmd, "hash", err)
			}
			out = append(out, CLIFileHash{Path: p, Hash: d.String()})
		}
		return outputResult(cmd, CLIResult{Command: "hash", Results: out})
	},
}

var depsCmd = &cobra.Command{
	Use:   "deps SRC",
	Short: "List the local source files a file transitively imports",
	Long:  "Scans SRC and its imports with tree-sitter and prints every file under the configured roots it depends on, itself included.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache()
		if err != nil {
			return outputError(cmd, "deps", err)
		}
		if cache != nil {
			defer cache.Close()
		}
		files, err := newScanner(cache).Deps(args[0])
		if err != nil {
			return outputError(cmd, "deps", err)
		}
		return outputResult(cmd, CLIResult{Command: "deps", Results: CLIDeps{Source: args[0], Files: files}})
	},
}

var planCmd = &cobra.Command{
	Use:   "plan PIPELINE [target...]",
	Short: "Show the jobs a build would need and which are cached",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := openWorkspace(args[0])
		if err != nil {
			return outputError(cmd, "plan", err)
		}
		defer w.Close()

		targets, err := w.pipeline.Targets(args[1:]...)
		if err != nil {
			return outputError(cmd, "plan", err)
		}
		steps, err := w.repo.Plan(targets...)
		if err != nil {
			return outputError(cmd, "plan", err)
		}
		out := make([]CLIPlanStep, 0, len(steps))
		for _, s := range steps {
			out = append(out, CLIPlanStep{
				Name:     w.pipeline.JobName(s.Job),
				Kind:     s.Job.Kind(),
				Hash:     s.Hash.String(),
				Location: s.Location,
				Cached:   s.Cached,
			})
		}
		return outputResult(cmd, CLIResult{Command: "plan", Results: out})
	},
}

var (
	flagParallel int
	flagWatch    bool
	flagTrace    bool
)

var buildCmd = &cobra.Command{
	Use:   "build PIPELINE [target...]",
	Short: "Build pipeline targets, running only jobs without a stored result",
	Long:  "Builds the named targets, or the pipeline's declared targets when none are given. Independent jobs run concurrently. With --watch the build reruns whenever an input file or kind source changes.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []bisque.RepoOption
		if flagTrace {
			tp, err := newTracerProvider(cmd.ErrOrStderr())
			if err != nil {
				return outputError(cmd, "build", err)
			}
			defer tp.Shutdown(context.Background())
			opts = append(opts, bisque.WithTracerProvider(tp))
		}

		if !flagWatch {
			summary, _, err := runBuild(cmd.Context(), args[0], args[1:], opts)
			if err != nil {
				return outputError(cmd, "build", err)
			}
			return outputResult(cmd, CLIResult{Command: "build", Results: summary})
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return watch.Run(ctx, func(ctx context.Context) ([]string, error) {
			summary, files, err := runBuild(ctx, args[0], args[1:], opts)
			if err != nil {
				return files, err
			}
			return files, outputResult(cmd, CLIResult{Command: "build", Results: summary})
		}, watch.WithLogger(logger))
	},
}

func init() {
	buildCmd.Flags().IntVar(&flagParallel, "parallel", 0, "maximum concurrently running jobs (default: config, then one per CPU)")
	buildCmd.Flags().BoolVar(&flagWatch, "watch", false, "rebuild when inputs or kind sources change")
	buildCmd.Flags().BoolVar(&flagTrace, "trace", false, "write a trace span per job to stderr")
}

// runBuild loads the pipeline at path, builds the named targets and returns
// the summary along with the files the build depends on, the pipeline file
// included.
func runBuild(ctx context.Context, path string, names []string, opts []bisque.RepoOption) (CLIBuildSummary, []string, error) {
	var summary CLIBuildSummary
	start := time.Now()
	abs, err := filepath.Abs(path)
	if err != nil {
		return summary, nil, err
	}
	reg := prometheus.NewRegistry()
	w, err := openWorkspace(abs, append(slices.Clip(opts), bisque.WithMetrics(reg))...)
	if err != nil {
		return summary, []string{abs}, err
	}
	defer w.Close()

	files, err := w.pipeline.Files()
	if err != nil {
		return summary, []string{abs}, err
	}
	files = append(files, abs)

	targets, err := w.pipeline.Targets(names...)
	if err != nil {
		return summary, files, err
	}
	if err := w.repo.Build(ctx, targets...); err != nil {
		return summary, files, err
	}

	summary.Duration = time.Since(start).Round(time.Millisecond).String()
	for _, t := range targets {
		h, err := t.SecHash()
		if err != nil {
			return summary, files, err
		}
		p, err := w.repo.Path(t)
		if err != nil {
			return summary, files, err
		}
		summary.Targets = append(summary.Targets, CLIBuildResult{Target: t.String(), Hash: h.String(), Path: p})
	}
	summary.JobsRun, summary.CacheHits, err = counters(reg)
	return summary, files, err
}

// newTracerProvider exports finished spans to w as they end.
func newTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp)), nil
}

var lsCmd = &cobra.Command{
	Use:   "ls [kind]",
	Short: "List artifacts recorded in the ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo()
		if err != nil {
			return outputError(cmd, "ls", err)
		}
		defer repo.Close()

		kind := ""
		if len(args) > 0 {
			kind = args[0]
		}
		recs, err := repo.Records(kind)
		if err != nil {
			return outputError(cmd, "ls", err)
		}
		out := make([]CLIRecord, 0, len(recs))
		for _, r := range recs {
			rec := CLIRecord{
				Hash:       r.Hash,
				Kind:       r.Kind,
				JobHash:    r.JobHash,
				Location:   r.Location,
				RecordedAt: r.RecordedAt,
			}
			for _, in := range r.Inputs {
				rec.Inputs = append(rec.Inputs, CLIInput{Hash: in.Hash, Location: in.Location})
			}
			out = append(out, rec)
		}
		return outputResult(cmd, CLIResult{Command: "ls", Results: out})
	},
}

// workspace is a loaded pipeline and the repo it builds into. The scanner
// cache shares the repo's ledger handle.
type workspace struct {
	pipeline *pipeline.Pipeline
	repo     *bisque.LocalRepo
}

func openWorkspace(path string, opts ...bisque.RepoOption) (*workspace, error) {
	repo, err := openRepo(opts...)
	if err != nil {
		return nil, err
	}
	p, err := pipeline.Load(path,
		pipeline.WithScanner(newScanner(repo.Ledger())),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		repo.Close()
		return nil, err
	}
	return &workspace{pipeline: p, repo: repo}, nil
}

func (w *workspace) Close() {
	w.repo.Close()
}

func openRepo(extra ...bisque.RepoOption) (*bisque.LocalRepo, error) {
	opts := []bisque.RepoOption{bisque.WithLogger(logger)}
	parallel := cfg.Parallel
	if flagParallel > 0 {
		parallel = flagParallel
	}
	opts = append(opts, bisque.WithParallelism(parallel))
	if cfg.Ledger != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Ledger), 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
		opts = append(opts, bisque.WithLedger(cfg.Ledger))
	}
	return bisque.NewLocalRepo(cfg.BaseDir, append(opts, extra...)...)
}

// openCache opens the ledger database for the scanner's import cache. It
// returns nil when no ledger is configured.
func openCache() (*store.Store, error) {
	if cfg.Ledger == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Ledger), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return store.Open(cfg.Ledger)
}

func newScanner(cache *store.Store) *scan.Scanner {
	opts := []scan.Option{scan.WithLogger(logger)}
	if cache != nil {
		opts = append(opts, scan.WithCache(cache))
	}
	return scan.New(cfg.Roots, opts...)
}

// counters sums the repo's run and cache hit counters.
func counters(g prometheus.Gatherer) (runs, hits int, err error) {
	families, err := g.Gather()
	if err != nil {
		return 0, 0, err
	}
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		switch mf.GetName() {
		case "bisque_jobs_run_total":
			runs = int(total)
		case "bisque_cache_hits_total":
			hits = int(total)
		}
	}
	return runs, hits, nil
}
