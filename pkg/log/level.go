package log

import (
	"fmt"
	"strings"
)

// Level is a logging severity.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "OFF"}

func (l Level) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// MarshalText renders the level by name, also in JSON entries.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

var levelAliases = map[string]Level{
	"":        LevelInfo,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"err":     LevelError,
	"off":     LevelOff,
	"none":    LevelOff,
}

// ParseLevel maps a level name onto a Level. The empty string is info.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Format selects how entries are written.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat maps "text" or "json" onto a Format. The empty string is text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// Category groups entries by the part of postmind that produced them.
type Category string

const (
	CategorySystem      Category = "system"      // connection lifecycle, profiles
	CategoryQuery       Category = "query"       // statement execution
	CategoryFunction    Category = "function"    // registration and the function library
	CategorySchema      Category = "schema"      // catalog reflection
	CategoryPerformance Category = "performance" // timings
)

var categories = []Category{
	CategorySystem,
	CategoryQuery,
	CategoryFunction,
	CategorySchema,
	CategoryPerformance,
}
