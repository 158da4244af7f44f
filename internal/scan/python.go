package scan

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/bisque/internal/store"
)

// pythonImports walks the whole tree, so imports nested in functions or
// try blocks count too.
func pythonImports(root *sitter.Node, src []byte) []*store.Import {
	var imps []*store.Import
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if name := importedModule(n.NamedChild(i), src); name != "" {
					imps = append(imps, &store.Import{Source: name, Kind: store.ImportKindImport})
				}
			}
			return
		case "import_from_statement":
			imps = append(imps, fromImports(n, src)...)
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return imps
}

// importedModule returns the dotted module name of a dotted_name or
// aliased_import node.
func importedModule(n *sitter.Node, src []byte) string {
	switch n.Type() {
	case "dotted_name":
		return n.Content(src)
	case "aliased_import":
		if name := n.ChildByFieldName("name"); name != nil {
			return name.Content(src)
		}
	}
	return ""
}

func fromImports(n *sitter.Node, src []byte) []*store.Import {
	mod := n.ChildByFieldName("module_name")
	if mod == nil {
		return nil
	}
	source := strings.Join(strings.Fields(mod.Content(src)), "")

	var imps []*store.Import
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() == mod.StartByte() && c.EndByte() == mod.EndByte() {
			continue
		}
		if name := importedModule(c, src); name != "" {
			imps = append(imps, &store.Import{Source: source, ImportedName: &name, Kind: store.ImportKindFrom})
		}
	}
	if len(imps) == 0 {
		// from x import *
		imps = append(imps, &store.Import{Source: source, Kind: store.ImportKindFrom})
	}
	return imps
}

// python resolves f's imports to local files. import a.b.c loads a, a.b
// and a.b.c; from a.b import c loads a, a.b and a.b.c when c is a module.
func (r *resolver) python(f string, imps []*store.Import) []string {
	var out []string
	for _, imp := range imps {
		var parts []string
		var bases []string

		source := imp.Source
		if strings.HasPrefix(source, ".") {
			level := len(source) - len(strings.TrimLeft(source, "."))
			base := filepath.Dir(f)
			for i := 1; i < level; i++ {
				base = filepath.Dir(base)
			}
			bases = []string{base}
			if rest := source[level:]; rest != "" {
				parts = strings.Split(rest, ".")
			}
			if len(parts) == 0 {
				out = append(out, r.pythonModule(base, nil)...)
			}
		} else {
			bases = r.roots
			parts = strings.Split(source, ".")
		}

		for _, base := range bases {
			for i := 1; i <= len(parts); i++ {
				out = append(out, r.pythonModule(base, parts[:i])...)
			}
			if imp.ImportedName != nil {
				sub := append(append([]string(nil), parts...), strings.Split(*imp.ImportedName, ".")...)
				out = append(out, r.pythonModule(base, sub)...)
			}
		}
	}
	return out
}

// pythonModule returns the local file for module parts under base: the
// package's __init__.py or the module's .py file.
func (r *resolver) pythonModule(base string, parts []string) []string {
	dir := filepath.Join(append([]string{base}, parts...)...)
	var candidates []string
	candidates = append(candidates, filepath.Join(dir, "__init__.py"))
	if len(parts) > 0 {
		candidates = append(candidates, dir+".py")
	}
	for _, c := range candidates {
		if isFile(c) && underRoot(c, r.roots) {
			return []string{c}
		}
	}
	return nil
}
