package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/mod/modfile"

	"github.com/jward/bisque/internal/store"
)

const goImportQuery = `(import_spec path: (_) @path)`

func goImports(root *sitter.Node, lang *sitter.Language, src []byte) ([]*store.Import, error) {
	q, err := sitter.NewQuery([]byte(goImportQuery), lang)
	if err != nil {
		return nil, fmt.Errorf("import query: %w", err)
	}
	defer q.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, root)

	var imps []*store.Import
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, src)
		for _, capture := range match.Captures {
			path, err := strconv.Unquote(capture.Node.Content(src))
			if err != nil {
				return nil, fmt.Errorf("import path %s: %w", capture.Node.Content(src), err)
			}
			imps = append(imps, &store.Import{Source: path, Kind: store.ImportKindImport})
		}
	}
	return imps, nil
}

// resolver maps import statements to local files for one Deps call.
type resolver struct {
	roots []string
	// modules caches the go.mod module path of each root; "" when the root
	// has no go.mod.
	modules map[string]string
}

// golang returns the other files of f's package and the files of every
// imported package that lives inside a root's module.
func (r *resolver) golang(f string, imps []*store.Import) ([]string, error) {
	out, err := goPackageFiles(filepath.Dir(f))
	if err != nil {
		return nil, err
	}
	for _, imp := range imps {
		for _, root := range r.roots {
			mod, err := r.modulePath(root)
			if err != nil {
				return nil, err
			}
			if mod == "" {
				continue
			}
			var rel string
			switch {
			case imp.Source == mod:
				rel = "."
			case strings.HasPrefix(imp.Source, mod+"/"):
				rel = strings.TrimPrefix(imp.Source, mod+"/")
			default:
				continue
			}
			files, err := goPackageFiles(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return nil, err
			}
			out = append(out, files...)
		}
	}
	return out, nil
}

func (r *resolver) modulePath(root string) (string, error) {
	if mod, ok := r.modules[root]; ok {
		return mod, nil
	}
	data, err := os.ReadFile(filepath.Join(root, "go.mod"))
	if os.IsNotExist(err) {
		r.modules[root] = ""
		return "", nil
	}
	if err != nil {
		return "", err
	}
	mod := modfile.ModulePath(data)
	r.modules[root] = mod
	return mod, nil
}

// goPackageFiles lists the non-test .go files of dir. A missing directory
// yields nothing.
func goPackageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	return files, nil
}
