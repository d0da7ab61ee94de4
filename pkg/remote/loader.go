package remote

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ha1tch/postmind/pkg/annotations"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
	"github.com/ha1tch/postmind/pkg/naming"
)

// SourceExt is the extension of function source files.
const SourceExt = ".py"

// Loader reads function sources from disk.
//
// A source file is plain Python. Its leading annotation block names the
// record; everything missing falls back to the file name and the defaults:
//
//	# @postmind:name=add
//	# @postmind:params=a,b
//	# @postmind:returns=setof int
//	def add(a, b):
//	    return [a + b]
type Loader struct {
	parser *annotations.Parser
	logger *log.Logger
}

// NewLoader creates a loader.
func NewLoader(logger *log.Logger) *Loader {
	return &Loader{
		parser: annotations.NewParser(),
		logger: logger,
	}
}

// LoadResult holds the result of loading a directory.
type LoadResult struct {
	Entries      []*Entry
	Errors       []LoadError
	TotalFiles   int
	SuccessCount int
	FailCount    int
}

// LoadError records a file that could not be loaded.
type LoadError struct {
	Path  string
	Error error
}

// Parse builds an entry from source. path is used for the default name and
// for error context; it may be empty.
func (l *Loader) Parse(path, source string) (*Entry, error) {
	set := l.parser.Header(source)
	if unknown := annotations.Unknown(set, annotations.FunctionAnnotations); len(unknown) > 0 {
		sort.Strings(unknown)
		l.logger.Function().Warn("unknown function annotations",
			"path", path,
			"keys", strings.Join(unknown, ","),
		)
	}

	name := set.GetString("name", "")
	if name == "" && path != "" {
		name = naming.SafeIdentifier(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}

	fn := Function{
		Name:     name,
		Version:  set.GetString("version", ""),
		Language: set.GetString("language", ""),
		Entry:    set.GetString("entry", ""),
		Params:   set.GetList("params"),
		Code:     source,
		Returns:  set.GetString("returns", ""),
	}
	if err := fn.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFunctionLoad, "invalid function source").
			WithOp("Loader.Parse").
			WithField("path", path).
			Err()
	}

	return &Entry{
		Function:    fn,
		Description: set.GetString("description", ""),
		SourceFile:  path,
		SourceHash:  computeHash(source),
		LoadedAt:    time.Now(),
	}, nil
}

// LoadFile reads and parses one source file.
func (l *Loader) LoadFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFunctionLoad, "failed to read function source").
			WithOp("Loader.LoadFile").
			WithField("path", path).
			Err()
	}
	return l.Parse(path, string(data))
}

// LoadDirectory loads every *.py file below root, skipping hidden and
// underscore-prefixed directories. Files that fail to parse are reported in
// the result and do not stop the load.
func (l *Loader) LoadDirectory(root string) (*LoadResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFunctionLoad, "function directory not found").
			WithOp("Loader.LoadDirectory").
			WithField("path", root).
			Err()
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrCodeFunctionLoad, "not a directory: %s", root).
			WithOp("Loader.LoadDirectory").
			Err()
	}

	result := &LoadResult{}
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), SourceExt) {
			return nil
		}

		entry, err := l.LoadFile(path)
		if err != nil {
			l.logger.Function().Warn("skipping function source", "path", path, "error", err.Error())
			result.Errors = append(result.Errors, LoadError{Path: path, Error: err})
			result.FailCount++
			return nil
		}
		result.Entries = append(result.Entries, entry)
		result.SuccessCount++
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFunctionLoad, "failed to walk function directory").
			WithOp("Loader.LoadDirectory").
			WithField("path", root).
			Err()
	}
	result.TotalFiles = result.SuccessCount + result.FailCount

	l.logger.Function().Info("function library loaded",
		"root", root,
		"functions", result.SuccessCount,
		"errors", result.FailCount,
	)
	return result, nil
}

// LoadInto loads root and adds every entry to lib.
func (l *Loader) LoadInto(lib *Library, root string) (*LoadResult, error) {
	result, err := l.LoadDirectory(root)
	if err != nil {
		return nil, err
	}
	for _, e := range result.Entries {
		if _, err := lib.Add(e); err != nil {
			result.Errors = append(result.Errors, LoadError{Path: e.SourceFile, Error: err})
		}
	}
	return result, nil
}
