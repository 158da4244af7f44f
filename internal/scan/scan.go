// Package scan finds the locally owned source files a source file
// transitively imports. A file is locally owned when it resolves under one
// of the scanner's roots; everything else is treated as frozen and ignored.
//
// Python files follow import statements to mod.py or mod/__init__.py.
// Go files pull in their package siblings and every package of a root's
// go.mod module they import. Files in other languages are leaves.
package scan

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/bisque/internal/sechash"
	"github.com/jward/bisque/internal/store"
)

// EnvPath names the environment variable holding the local roots, separated
// by os.PathListSeparator.
const EnvPath = "BISQUE_PATH"

// Scanner resolves local source dependencies.
type Scanner struct {
	roots  []string
	cache  *store.Store
	logger zerolog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithCache stores parsed imports in s keyed by path and content hash, so
// unchanged files are not parsed again.
func WithCache(s *store.Store) Option {
	return func(sc *Scanner) {
		sc.cache = s
	}
}

// WithLogger sets the scanner's logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(sc *Scanner) {
		sc.logger = l
	}
}

// New returns a Scanner over roots. With no roots it reads BISQUE_PATH on
// every call, and when that is unset too the scanned file's own directory
// is the root.
func New(roots []string, opts ...Option) *Scanner {
	sc := &Scanner{logger: zerolog.Nop()}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			sc.roots = append(sc.roots, abs)
		}
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// DefaultRoots returns the absolute roots listed in BISQUE_PATH, or nil.
func DefaultRoots() []string {
	var roots []string
	for _, r := range filepath.SplitList(os.Getenv(EnvPath)) {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			roots = append(roots, abs)
		}
	}
	return roots
}

func (sc *Scanner) rootsFor(srcFile string) []string {
	if len(sc.roots) > 0 {
		return sc.roots
	}
	if roots := DefaultRoots(); len(roots) > 0 {
		return roots
	}
	return []string{filepath.Dir(srcFile)}
}

// Deps returns the sorted absolute paths of srcFile and every locally owned
// file it transitively imports. An unparseable or unreadable file anywhere
// in the closure fails the whole call.
func (sc *Scanner) Deps(srcFile string) ([]string, error) {
	abs, err := filepath.Abs(srcFile)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	r := &resolver{roots: sc.rootsFor(abs), modules: make(map[string]string)}

	seen := map[string]bool{abs: true}
	queue := []string{abs}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]

		deps, err := sc.direct(f, r)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", f, err)
		}
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	sc.logger.Debug().Str("file", abs).Int("deps", len(out)).Msg("scanned dependencies")
	return out, nil
}

// direct returns the local files f depends on without recursing.
func (sc *Scanner) direct(f string, r *resolver) ([]string, error) {
	lang := languageFor(f)
	if lang == nil {
		if _, err := os.Stat(f); err != nil {
			return nil, err
		}
		return nil, nil
	}
	imps, err := sc.imports(f, lang)
	if err != nil {
		return nil, err
	}
	return lang.resolve(r, f, imps)
}

// imports returns the import statements of f, from the cache when the
// file's content hash matches.
func (sc *Scanner) imports(f string, lang *language) ([]*store.Import, error) {
	src, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	hash := sechash.HashBytes(src).String()

	if sc.cache != nil {
		cached, err := sc.cache.FileByPath(f)
		if err != nil {
			return nil, err
		}
		if cached != nil && cached.Hash == hash {
			sc.logger.Debug().Str("file", f).Msg("scan cache hit")
			return sc.cache.ImportsByFile(cached.ID)
		}
	}

	imps, err := parseImports(src, lang)
	if err != nil {
		return nil, err
	}

	if sc.cache != nil {
		rec := &store.File{Path: f, Language: lang.name, Hash: hash, LastIndexed: time.Now()}
		if err := sc.cache.ReplaceFileImports(rec, imps); err != nil {
			return nil, err
		}
	}
	return imps, nil
}

func parseImports(src []byte, lang *language) ([]*store.Import, error) {
	grammar := lang.treeSitter()
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("syntax error near line %d", firstError(root).StartPoint().Row+1)
	}
	return lang.extract(root, grammar, src)
}

// firstError returns the first ERROR or MISSING node below n, or n itself.
func firstError(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.IsError() || c.IsMissing() {
			return c
		}
		if c.HasError() {
			return firstError(c)
		}
	}
	return n
}

// underRoot reports whether path lies inside one of roots.
func underRoot(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, path)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
