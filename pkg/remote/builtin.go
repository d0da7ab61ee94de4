package remote

import (
	"embed"
	"path"
	"sort"

	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
)

// Names of the built-in functions.
const (
	SetupFunction     = "postmind_setup"
	CSVHeaderFunction = "postmind_csv_header"
)

//go:embed builtin/*.py
var builtinFS embed.FS

// Builtins returns the functions shipped with postmind, sorted by name.
func Builtins() ([]*Entry, error) {
	files, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read built-in functions").Err()
	}

	loader := NewLoader(log.Discard())
	entries := make([]*Entry, 0, len(files))
	for _, f := range files {
		name := path.Join("builtin", f.Name())
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read built-in function").
				WithField("path", name).Err()
		}
		entry, err := loader.Parse(name, string(data))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Function.Name < entries[j].Function.Name })
	return entries, nil
}

// Builtin returns the built-in function called name.
func Builtin(name string) (Function, error) {
	entries, err := Builtins()
	if err != nil {
		return Function{}, err
	}
	for _, e := range entries {
		if e.Function.Name == name {
			return e.Function, nil
		}
	}
	return Function{}, errors.NotFound(errors.ErrCodeFunctionNotFound, "built-in function", name).Err()
}
