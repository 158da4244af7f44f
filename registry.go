package bisque

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"github.com/jward/bisque/internal/scan"
	"github.com/jward/bisque/internal/sechash"
)

// Scanner finds the locally owned source files a source file depends on.
// Deps returns sorted absolute paths, srcFile included.
type Scanner interface {
	Deps(srcFile string) ([]string, error)
}

// KindSpec is the source manifest of a job kind: the files whose contents
// define what the kind computes.
type KindSpec struct {
	Name string

	// Sources are files defining the kind's computation. Relative paths are
	// resolved against the working directory at registration.
	Sources []string

	// Digests are precomputed content hashes for code that has no file on
	// disk, such as a version string of an embedded tool.
	Digests []Digest

	// Scan expands every source through the registry's Scanner so files
	// they import are covered too.
	Scan bool
}

// Registry maps kind names to their manifests.
type Registry struct {
	mu      sync.RWMutex
	kinds   map[string]KindSpec
	scanner Scanner
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithScanner sets the scanner used for kinds registered with Scan. The
// default is an import scanner rooted at BISQUE_PATH.
func WithScanner(sc Scanner) RegistryOption {
	return func(r *Registry) {
		r.scanner = sc
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{kinds: make(map[string]KindSpec)}
	for _, opt := range opts {
		opt(r)
	}
	if r.scanner == nil {
		r.scanner = scan.New(nil)
	}
	return r
}

// DefaultRegistry is used by jobs constructed without WithRegistry.
var DefaultRegistry = NewRegistry()

// Register adds spec to DefaultRegistry.
func Register(spec KindSpec) error {
	return DefaultRegistry.Register(spec)
}

// MustRegister adds spec to DefaultRegistry and panics on error.
func MustRegister(spec KindSpec) {
	DefaultRegistry.MustRegister(spec)
}

// Register adds spec. Registering the same manifest again is a no-op;
// registering a different manifest under a taken name fails with
// ErrKindConflict.
func (r *Registry) Register(spec KindSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("bisque: register: empty kind name")
	}
	norm, err := normalizeSpec(spec)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.kinds[norm.Name]; ok {
		if sameSpec(prev, norm) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrKindConflict, norm.Name)
	}
	r.kinds[norm.Name] = norm
	return nil
}

func (r *Registry) MustRegister(spec KindSpec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Lookup returns the normalized manifest for kind.
func (r *Registry) Lookup(kind string) (KindSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.kinds[kind]
	return spec, ok
}

// Kinds returns the registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SourceFiles returns the sorted absolute paths of every file defining
// kind, expanded through the scanner when the kind asks for it.
func (r *Registry) SourceFiles(kind string) ([]string, error) {
	spec, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if !spec.Scan {
		return spec.Sources, nil
	}

	var files []string
	for _, src := range spec.Sources {
		deps, err := r.scanner.Deps(src)
		if err != nil {
			return nil, fmt.Errorf("bisque: kind %s: scan %s: %w", kind, src, err)
		}
		files = append(files, deps...)
	}
	sort.Strings(files)
	return slices.Compact(files), nil
}

// SourceDigests returns the content hashes of the kind's source files in
// path order, followed by its precomputed digests. Files are read on every
// call.
func (r *Registry) SourceDigests(kind string) ([]Digest, error) {
	files, err := r.SourceFiles(kind)
	if err != nil {
		return nil, err
	}
	spec, _ := r.Lookup(kind)

	digests := make([]Digest, 0, len(files)+len(spec.Digests))
	for _, f := range files {
		d, err := sechash.HashFile(f)
		if err != nil {
			return nil, fmt.Errorf("bisque: kind %s source: %w", kind, err)
		}
		digests = append(digests, d)
	}
	return append(digests, spec.Digests...), nil
}

func normalizeSpec(spec KindSpec) (KindSpec, error) {
	out := KindSpec{Name: spec.Name, Scan: spec.Scan}
	for _, src := range spec.Sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return KindSpec{}, fmt.Errorf("bisque: register %s: %w", spec.Name, err)
		}
		out.Sources = append(out.Sources, abs)
	}
	sort.Strings(out.Sources)
	out.Sources = slices.Compact(out.Sources)
	out.Digests = append([]Digest(nil), spec.Digests...)
	return out, nil
}

func sameSpec(a, b KindSpec) bool {
	return a.Name == b.Name && a.Scan == b.Scan &&
		slices.Equal(a.Sources, b.Sources) && slices.Equal(a.Digests, b.Digests)
}
