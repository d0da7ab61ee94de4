// Package log provides structured logging for postmind.
//
// A Logger is an explicit handle: the Context creates one when it opens, or
// receives one from the caller, and flushes and closes it when the Context
// is closed. There is no package-level logger.
//
// Entries belong to a Category, each with its own level threshold, and are
// written as text lines or JSON objects to a writer or a size-rotated file.
package log

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	DefaultLevel   Level
	CategoryLevels map[Category]Level

	// Output is used when File is empty (os.Stderr if nil).
	Output io.Writer
	Format Format

	// File enables a size-rotated log file instead of Output.
	File       string
	MaxSizeMB  int
	MaxBackups int

	IncludeCaller bool
	AsyncBuffer   int // entries queued for a background writer; 0 writes inline
}

// DefaultConfig logs info and above as text to stderr. A configured file
// rotates at 1 MB keeping one backup.
func DefaultConfig() Config {
	return Config{
		DefaultLevel: LevelInfo,
		Output:       os.Stderr,
		Format:       FormatText,
		MaxSizeMB:    1,
		MaxBackups:   1,
	}
}

// Logger is the logging handle passed to every component.
type Logger struct {
	mu     sync.RWMutex
	levels map[Category]Level
	closed bool
	queue  chan Entry

	writeMu sync.Mutex
	out     io.Writer
	file    io.Closer
	format  Format
	caller  bool

	drained   chan struct{}
	closeOnce sync.Once
	closeErr  error

	written atomic.Int64
	dropped atomic.Int64
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	l := &Logger{
		levels: make(map[Category]Level, len(categories)),
		out:    cfg.Output,
		format: cfg.Format,
		caller: cfg.IncludeCaller,
	}
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		l.out, l.file = rotated, rotated
	}
	if l.out == nil {
		l.out = os.Stderr
	}

	for _, c := range categories {
		l.levels[c] = cfg.DefaultLevel
	}
	for c, level := range cfg.CategoryLevels {
		l.levels[c] = level
	}

	if cfg.AsyncBuffer > 0 {
		l.queue = make(chan Entry, cfg.AsyncBuffer)
		l.drained = make(chan struct{})
		go l.drain()
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(Config{DefaultLevel: LevelOff, Output: io.Discard})
}

// SetLevel changes the threshold of one category.
func (l *Logger) SetLevel(c Category, level Level) {
	l.mu.Lock()
	l.levels[c] = level
	l.mu.Unlock()
}

// Enabled reports whether entries of level are written for c.
func (l *Logger) Enabled(c Category, level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled(c, level)
}

func (l *Logger) enabled(c Category, level Level) bool {
	return level != LevelOff && level >= l.levels[c]
}

// Close flushes queued entries and closes the log file, if any. Entries
// logged afterwards are discarded. Close is idempotent.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		if l.queue != nil {
			close(l.queue)
		}
		l.mu.Unlock()

		if l.drained != nil {
			<-l.drained
		}
		if l.file != nil {
			l.closeErr = l.file.Close()
		}
	})
	return l.closeErr
}

// Stats returns how many entries were written and how many were dropped
// because the async queue was full.
func (l *Logger) Stats() (written, dropped int64) {
	return l.written.Load(), l.dropped.Load()
}

func (l *Logger) System() *Scope      { return &Scope{logger: l, category: CategorySystem} }
func (l *Logger) Query() *Scope       { return &Scope{logger: l, category: CategoryQuery} }
func (l *Logger) Function() *Scope    { return &Scope{logger: l, category: CategoryFunction} }
func (l *Logger) Schema() *Scope      { return &Scope{logger: l, category: CategorySchema} }
func (l *Logger) Performance() *Scope { return &Scope{logger: l, category: CategoryPerformance} }

func (l *Logger) emit(level Level, c Category, msg string, err error, kv []interface{}) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || !l.enabled(c, level) {
		return
	}

	e := Entry{
		Time:     time.Now(),
		Level:    level,
		Category: c,
		Message:  msg,
		Fields:   fieldMap(kv),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if l.caller {
		// emit <- Scope method <- caller
		e.Caller = callerAt(3)
	}

	if l.queue == nil {
		l.write(&e)
		return
	}
	select {
	case l.queue <- e:
	default:
		l.dropped.Add(1)
	}
}

func (l *Logger) write(e *Entry) {
	data := e.encode(l.format)
	l.writeMu.Lock()
	l.out.Write(data)
	l.writeMu.Unlock()
	l.written.Add(1)
}

func (l *Logger) drain() {
	defer close(l.drained)
	for e := range l.queue {
		l.write(&e)
	}
}

// Scope logs into one category, optionally with preset fields.
type Scope struct {
	logger   *Logger
	category Category
	preset   []interface{}
}

// With returns a scope that adds kv to every entry.
func (s *Scope) With(kv ...interface{}) *Scope {
	preset := make([]interface{}, 0, len(s.preset)+len(kv))
	preset = append(append(preset, s.preset...), kv...)
	return &Scope{logger: s.logger, category: s.category, preset: preset}
}

func (s *Scope) fields(kv []interface{}) []interface{} {
	if len(s.preset) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(s.preset)+len(kv))
	return append(append(out, s.preset...), kv...)
}

func (s *Scope) Debug(msg string, kv ...interface{}) {
	s.logger.emit(LevelDebug, s.category, msg, nil, s.fields(kv))
}

func (s *Scope) Info(msg string, kv ...interface{}) {
	s.logger.emit(LevelInfo, s.category, msg, nil, s.fields(kv))
}

func (s *Scope) Warn(msg string, kv ...interface{}) {
	s.logger.emit(LevelWarn, s.category, msg, nil, s.fields(kv))
}

func (s *Scope) Error(msg string, err error, kv ...interface{}) {
	s.logger.emit(LevelError, s.category, msg, err, s.fields(kv))
}
