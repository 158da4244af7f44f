package runtime

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/risor-io/risor/object"
	"github.com/rs/zerolog"

	"github.com/jward/bisque/internal/sechash"
)

func stringArg(name string, args []object.Object, i int) (string, *object.Error) {
	s, ok := args[i].(*object.String)
	if !ok {
		return "", object.Errorf("%s: argument %d must be a string, got %s", name, i+1, args[i].Type())
	}
	return s.Value(), nil
}

// makeReadFileFn creates the "read_file" host function.
//
// read_file(path) → string
func makeReadFileFn() *object.Builtin {
	return object.NewBuiltin("read_file", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("read_file", 1, len(args))
		}
		path, errObj := stringArg("read_file", args, 0)
		if errObj != nil {
			return errObj
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("read_file: %v", err)
		}
		return object.NewString(string(data))
	})
}

// makeWriteFileFn creates the "write_file" host function. Missing parent
// directories are created.
//
// write_file(path, content) → nil
func makeWriteFileFn() *object.Builtin {
	return object.NewBuiltin("write_file", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("write_file", 2, len(args))
		}
		path, errObj := stringArg("write_file", args, 0)
		if errObj != nil {
			return errObj
		}
		content, errObj := stringArg("write_file", args, 1)
		if errObj != nil {
			return errObj
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return object.Errorf("write_file: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return object.Errorf("write_file: %v", err)
		}
		return object.Nil
	})
}

// makeListDirFn creates the "list_dir" host function.
//
// list_dir(path) → []string of entry names, sorted
func makeListDirFn() *object.Builtin {
	return object.NewBuiltin("list_dir", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("list_dir", 1, len(args))
		}
		path, errObj := stringArg("list_dir", args, 0)
		if errObj != nil {
			return errObj
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return object.Errorf("list_dir: %v", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		return object.NewStringList(names)
	})
}

// makeMkdirFn creates the "mkdir" host function, which behaves like
// mkdir -p.
//
// mkdir(path) → nil
func makeMkdirFn() *object.Builtin {
	return object.NewBuiltin("mkdir", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("mkdir", 1, len(args))
		}
		path, errObj := stringArg("mkdir", args, 0)
		if errObj != nil {
			return errObj
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return object.Errorf("mkdir: %v", err)
		}
		return object.Nil
	})
}

// exists(path) → bool
func makeExistsFn() *object.Builtin {
	return object.NewBuiltin("exists", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("exists", 1, len(args))
		}
		path, errObj := stringArg("exists", args, 0)
		if errObj != nil {
			return errObj
		}
		_, err := os.Stat(path)
		return object.NewBool(err == nil)
	})
}

// makeHashFileFn creates the "hash_file" host function. The digest is the
// same one bisque uses for file contents.
//
// hash_file(path) → string
func makeHashFileFn() *object.Builtin {
	return object.NewBuiltin("hash_file", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("hash_file", 1, len(args))
		}
		path, errObj := stringArg("hash_file", args, 0)
		if errObj != nil {
			return errObj
		}
		d, err := sechash.HashFile(path)
		if err != nil {
			return object.Errorf("hash_file: %v", err)
		}
		return object.NewString(d.String())
	})
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger zerolog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info().Msg(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error().Msg(msg)
}
