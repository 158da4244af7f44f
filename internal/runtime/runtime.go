// Package runtime embeds a Risor VM for script-defined job kinds. Scripts
// receive their job's input paths, staging output path and parameters as
// globals, plus a small set of file and logging host functions.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"
	"github.com/rs/zerolog"
)

// Job is the view a job script has of its job.
type Job struct {
	Inputs []string
	Output string
	Params map[string]any
}

func (j Job) vars() map[string]any {
	inputs := make([]any, len(j.Inputs))
	for i, p := range j.Inputs {
		inputs[i] = p
	}
	params := j.Params
	if params == nil {
		params = map[string]any{}
	}
	return map[string]any{"inputs": inputs, "output": j.Output, "params": params}
}

// VM runs job scripts. Script imports resolve against its directory or
// filesystem.
type VM struct {
	dir    string
	fsys   fs.FS
	logger zerolog.Logger
}

// Option configures a VM.
type Option func(*VM)

// WithFS reads scripts and their imports from fsys instead of disk.
func WithFS(fsys fs.FS) Option {
	return func(vm *VM) {
		vm.fsys = fsys
	}
}

// WithLogger sets the logger behind the scripts' log global.
func WithLogger(l zerolog.Logger) Option {
	return func(vm *VM) {
		vm.logger = l
	}
}

// New returns a VM resolving relative script paths and imports against dir.
func New(dir string, opts ...Option) *VM {
	vm := &VM{dir: dir, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// RunJob executes the script at path for job.
func (vm *VM) RunJob(ctx context.Context, path string, job Job) error {
	src, err := vm.Source(path)
	if err != nil {
		return err
	}
	return vm.exec(ctx, path, src, job.vars())
}

// Exec evaluates src with vars added to the globals.
func (vm *VM) Exec(ctx context.Context, src string, vars map[string]any) error {
	return vm.exec(ctx, "<inline>", src, vars)
}

// Source returns the text of the script at p.
func (vm *VM) Source(p string) (string, error) {
	if vm.fsys != nil {
		name := path.Clean(strings.TrimPrefix(filepath.ToSlash(p), "/"))
		data, err := fs.ReadFile(vm.fsys, name)
		if err != nil {
			return "", fmt.Errorf("runtime: read script %s: %w", name, err)
		}
		return string(data), nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(vm.dir, p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("runtime: read script: %w", err)
	}
	return string(data), nil
}

func (vm *VM) exec(ctx context.Context, label, src string, vars map[string]any) error {
	globals := vm.builtins(label)
	for k, v := range vars {
		globals[k] = v
	}

	names := make([]string, 0, len(globals))
	opts := make([]risor.Option, 0, len(globals)+1)
	for name, val := range globals {
		names = append(names, name)
		opts = append(opts, risor.WithGlobal(name, val))
	}
	if imp := vm.importer(names); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	if _, err := risor.Eval(ctx, src, opts...); err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// importer resolves `import name` to name.risor. Imported modules see the
// same globals as the importing script.
func (vm *VM) importer(globals []string) importer.Importer {
	switch {
	case vm.fsys != nil:
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globals,
			SourceFS:    vm.fsys,
			Extensions:  []string{".risor"},
		})
	case vm.dir != "":
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globals,
			SourceDir:   vm.dir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

func (vm *VM) builtins(label string) map[string]any {
	log := &logObject{logger: vm.logger.With().Str("script", label).Logger()}
	proxy, err := object.NewProxy(log)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy log: %v", err))
	}
	return map[string]any{
		"read_file":  makeReadFileFn(),
		"write_file": makeWriteFileFn(),
		"list_dir":   makeListDirFn(),
		"mkdir":      makeMkdirFn(),
		"exists":     makeExistsFn(),
		"hash_file":  makeHashFileFn(),
		"log":        proxy,
	}
}
