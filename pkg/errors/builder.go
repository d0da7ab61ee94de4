package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Builder assembles an Error. The zero severity is SeverityError.
type Builder struct {
	err   Error
	stack bool
}

// New starts an error with a fixed message.
func New(code Code, message string) *Builder {
	return &Builder{err: Error{Code: code, Message: message, Severity: SeverityError}}
}

// Newf starts an error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Builder {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap starts an error caused by cause.
func Wrap(cause error, code Code, message string) *Builder {
	b := New(code, message)
	b.err.Cause = cause
	return b
}

// Wrapf is Wrap with a formatted message.
func Wrapf(cause error, code Code, format string, args ...interface{}) *Builder {
	return Wrap(cause, code, fmt.Sprintf(format, args...))
}

func (b *Builder) Warning() *Builder {
	b.err.Severity = SeverityWarning
	return b
}

func (b *Builder) Critical() *Builder {
	b.err.Severity = SeverityCritical
	return b
}

// WithField stores a context value. Later calls overwrite earlier ones.
func (b *Builder) WithField(key string, value interface{}) *Builder {
	if b.err.Fields == nil {
		b.err.Fields = map[string]interface{}{}
	}
	b.err.Fields[key] = value
	return b
}

// WithSQL stores the statement that failed under "sql".
func (b *Builder) WithSQL(sql string) *Builder {
	return b.WithField("sql", sql)
}

// WithOp names the operation, e.g. "Context.Query".
func (b *Builder) WithOp(op string) *Builder {
	b.err.OpName = op
	return b
}

// WithStack records the call stack at Build time.
func (b *Builder) WithStack() *Builder {
	b.stack = true
	return b
}

// Build returns a fresh Error. The builder can be built again.
func (b *Builder) Build() *Error {
	e := b.err
	e.Time = time.Now()
	if len(b.err.Fields) > 0 {
		e.Fields = make(map[string]interface{}, len(b.err.Fields))
		for k, v := range b.err.Fields {
			e.Fields[k] = v
		}
	}
	if b.stack {
		e.Stack = stackFrom(3)
	}
	return &e
}

// Err is Build typed as error.
func (b *Builder) Err() error {
	return b.Build()
}

// Credential reports a profile that is missing or unusable.
func Credential(profile, reason string) *Builder {
	return Newf(ErrCodeCredentialMissing, "credentials not configured for profile %q: %s", profile, reason).
		WithField("profile", profile)
}

// Serialization reports a function record or argument payload that cannot
// be encoded.
func Serialization(function, reason string) *Builder {
	return Newf(ErrCodeSerialization, "cannot serialize %s: %s", function, reason).
		WithField("function", function)
}

// RemoteExecution wraps a server failure while creating or calling a function.
func RemoteExecution(cause error, function, sql string) *Builder {
	return Wrapf(cause, ErrCodeRemoteExecution, "remote function %s failed", function).
		WithField("function", function).
		WithSQL(sql)
}

func Query(cause error, sql string) *Builder {
	return Wrap(cause, ErrCodeQueryFailed, "query failed").WithSQL(sql)
}

// TypeMismatch reports an operation on an incompatible column or fragment.
func TypeMismatch(format string, args ...interface{}) *Builder {
	return Newf(ErrCodeTypeMismatch, format, args...)
}

func NotFound(code Code, entity, identifier string) *Builder {
	return Newf(code, "%s not found: %s", entity, identifier).
		WithField("entity", entity).
		WithField("identifier", identifier)
}

// UnsupportedDialect reports an operation the connected family lacks.
func UnsupportedDialect(operation, family string) *Builder {
	return Newf(ErrCodeUnsupportedDialect, "%s is not supported for %s", operation, family).
		WithField("operation", operation).
		WithField("family", family)
}

// GetCode returns the code of the first *Error in the chain, or
// ErrCodeInternal.
func GetCode(err error) Code {
	if e, ok := find(err); ok {
		return e.Code
	}
	return ErrCodeInternal
}

// GetFields returns the context of the first *Error in the chain.
func GetFields(err error) map[string]interface{} {
	if e, ok := find(err); ok {
		return e.Fields
	}
	return nil
}

func IsCode(err error, code Code) bool {
	return err != nil && GetCode(err) == code
}

func IsCategory(err error, category string) bool {
	return err != nil && GetCode(err).Category() == category
}

func find(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}

// Is, As and Join forward to the standard library so callers need one import.
func Is(err, target error) bool             { return stderrors.Is(err, target) }
func As(err error, target interface{}) bool { return stderrors.As(err, target) }
func Join(errs ...error) error              { return stderrors.Join(errs...) }
