package errors

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
)

const maxFrames = 10

// Error is a coded failure with optional cause and context.
type Error struct {
	Code     Code
	Message  string
	Severity Severity
	Fields   map[string]interface{}
	Cause    error
	OpName   string
	Time     time.Time
	Stack    []Frame
}

// Frame is one captured call site.
type Frame struct {
	Function string
	File     string
	Line     int
}

func (e *Error) Error() string {
	msg := e.Code.String() + ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Field returns the context value stored under key.
func (e *Error) Field(key string) interface{} {
	return e.Fields[key]
}

// Format prints the short message for %s and %v. %+v adds the operation,
// the context fields in key order, the cause and the stack.
func (e *Error) Format(f fmt.State, verb rune) {
	switch {
	case verb == 'v' && f.Flag('+'):
		fmt.Fprint(f, e.detail())
	case verb == 'q':
		fmt.Fprintf(f, "%q", e.Error())
	default:
		fmt.Fprint(f, e.Error())
	}
}

func (e *Error) detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s: %s\n", e.Time.Format(time.RFC3339), e.Severity, e.Code, e.Message)
	if e.OpName != "" {
		fmt.Fprintf(&b, "  Operation: %s\n", e.OpName)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("  Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s = %v\n", k, e.Fields[k])
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, "  Cause: %v\n", e.Cause)
	}
	if len(e.Stack) > 0 {
		b.WriteString("  Stack:\n")
		for _, fr := range e.Stack {
			fmt.Fprintf(&b, "    %s (%s:%d)\n", fr.Function, fr.File, fr.Line)
		}
	}
	return b.String()
}

// stackFrom records the caller frames above skip, leaving out the runtime.
func stackFrom(skip int) []Frame {
	pcs := make([]uintptr, 2*maxFrames)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []Frame
	for len(out) < maxFrames {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, "runtime.") {
			out = append(out, Frame{Function: fr.Function, File: fr.File, Line: fr.Line})
		}
		if !more {
			break
		}
	}
	return out
}
