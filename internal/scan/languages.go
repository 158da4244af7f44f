package scan

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/jward/bisque/internal/store"
)

// language is a source language whose imports the scanner follows.
type language struct {
	name    string
	exts    []string
	grammar func() *sitter.Language

	// extract lists the import statements of a parsed file.
	extract func(root *sitter.Node, lang *sitter.Language, src []byte) ([]*store.Import, error)

	// resolve maps a file's imports to the local files they name.
	resolve func(r *resolver, file string, imps []*store.Import) ([]string, error)

	once sync.Once
	ts   *sitter.Language
}

var languages = []*language{
	{
		name:    "go",
		exts:    []string{".go"},
		grammar: golang.GetLanguage,
		extract: goImports,
		resolve: (*resolver).golang,
	},
	{
		name:    "python",
		exts:    []string{".py"},
		grammar: python.GetLanguage,
		extract: func(root *sitter.Node, _ *sitter.Language, src []byte) ([]*store.Import, error) {
			return pythonImports(root, src), nil
		},
		resolve: func(r *resolver, file string, imps []*store.Import) ([]string, error) {
			return r.python(file, imps), nil
		},
	},
}

// treeSitter returns the language's grammar, loading it once.
func (l *language) treeSitter() *sitter.Language {
	l.once.Do(func() {
		l.ts = l.grammar()
	})
	return l.ts
}

// languageFor returns the language of path by extension, or nil for files
// the scanner treats as leaves.
func languageFor(path string) *language {
	ext := strings.ToLower(filepath.Ext(path))
	for _, l := range languages {
		for _, e := range l.exts {
			if e == ext {
				return l
			}
		}
	}
	return nil
}

// LanguageForFile returns the name of the language the scanner parses path
// as, if any.
func LanguageForFile(path string) (string, bool) {
	if l := languageFor(path); l != nil {
		return l.name, true
	}
	return "", false
}
