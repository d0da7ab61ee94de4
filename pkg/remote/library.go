package remote

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/ha1tch/postmind/pkg/errors"
)

// Entry is a function loaded from a source file.
type Entry struct {
	Function    Function
	Description string
	SourceFile  string
	SourceHash  string
	LoadedAt    time.Time
}

// Library maintains the functions available by name.
type Library struct {
	mu      sync.RWMutex
	entries map[string]*Entry // key: function name
	byFile  map[string]*Entry // key: source file path
}

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	return &Library{
		entries: make(map[string]*Entry),
		byFile:  make(map[string]*Entry),
	}
}

// Add stores e, replacing any entry with the same name. It reports whether
// the library changed: re-adding identical source is a no-op.
func (l *Library) Add(e *Entry) (bool, error) {
	if err := e.Function.Validate(); err != nil {
		return false, err
	}
	if e.SourceHash == "" {
		e.SourceHash = computeHash(e.Function.Code)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	name := e.Function.Name
	if existing, ok := l.entries[name]; ok {
		if existing.SourceHash == e.SourceHash && existing.SourceFile == e.SourceFile {
			return false, nil
		}
		if existing.SourceFile != "" && existing.SourceFile != e.SourceFile {
			if owner, ok := l.byFile[existing.SourceFile]; ok && owner == existing {
				delete(l.byFile, existing.SourceFile)
			}
		}
	}

	l.entries[name] = e
	if e.SourceFile != "" {
		l.byFile[e.SourceFile] = e
	}
	return true, nil
}

// Remove deletes the function called name.
func (l *Library) Remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[name]
	if !ok {
		return errors.NotFound(errors.ErrCodeFunctionNotFound, "function", name).
			WithOp("Library.Remove").
			Err()
	}
	delete(l.entries, name)
	if e.SourceFile != "" {
		delete(l.byFile, e.SourceFile)
	}
	return nil
}

// Lookup finds a function by name.
func (l *Library) Lookup(name string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if e, ok := l.entries[name]; ok {
		return e, nil
	}
	return nil, errors.NotFound(errors.ErrCodeFunctionNotFound, "function", name).
		WithOp("Library.Lookup").
		Err()
}

// LookupByFile finds the function loaded from path.
func (l *Library) LookupByFile(path string) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if e, ok := l.byFile[path]; ok {
		return e, nil
	}
	return nil, errors.Newf(errors.ErrCodeFunctionNotFound, "no function loaded from: %s", path).
		WithOp("Library.LookupByFile").
		WithField("path", path).
		Err()
}

// List returns the entries sorted by name.
func (l *Library) List() []*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Function.Name < out[j].Function.Name })
	return out
}

// Count returns the number of functions.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// computeHash returns a short SHA-256 of source for change detection.
func computeHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])[:16]
}
