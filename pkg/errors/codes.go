// Package errors carries postmind's structured errors.
//
// An error has a numeric code whose thousands digit names its category:
//
//	1xxx credential and configuration
//	2xxx connection
//	3xxx serialization and function records
//	4xxx execution (queries, remote functions)
//	5xxx schema reflection
//	6xxx incompatible column or fragment types
//	9xxx internal
package errors

import "fmt"

// Code identifies a failure for programmatic handling.
type Code int

const (
	ErrCodeCredentialMissing Code = 1001
	ErrCodeCredentialDecode  Code = 1002
	ErrCodeCredentialWrite   Code = 1003
	ErrCodeConfigInvalid     Code = 1004
	ErrCodeConfigParse       Code = 1005

	ErrCodeConnectionFailed  Code = 2001
	ErrCodeConnectionClosed  Code = 2002
	ErrCodeUnsupportedDriver Code = 2003
	ErrCodeInvalidURI        Code = 2004

	ErrCodeSerialization    Code = 3001
	ErrCodeFunctionInvalid  Code = 3002
	ErrCodeFunctionNotFound Code = 3003
	ErrCodeFunctionLoad     Code = 3004

	ErrCodeQueryFailed        Code = 4001
	ErrCodeRemoteExecution    Code = 4002
	ErrCodeExecFailed         Code = 4003
	ErrCodeUnsupportedDialect Code = 4004
	ErrCodeCancelled          Code = 4005

	ErrCodeSchemaReflection Code = 5001
	ErrCodeTableNotFound    Code = 5002
	ErrCodeColumnNotFound   Code = 5003

	ErrCodeTypeMismatch Code = 6001
	ErrCodeInvalidIndex Code = 6002

	ErrCodeInternal       Code = 9001
	ErrCodeNotImplemented Code = 9002
)

// Categories reported by Code.Category.
const (
	CategoryCredential    = "credential"
	CategoryConnection    = "connection"
	CategorySerialization = "serialization"
	CategoryExecution     = "execution"
	CategorySchema        = "schema"
	CategoryType          = "type"
	CategoryInternal      = "internal"
)

var categoryByRange = map[Code]string{
	1: CategoryCredential,
	2: CategoryConnection,
	3: CategorySerialization,
	4: CategoryExecution,
	5: CategorySchema,
	6: CategoryType,
	9: CategoryInternal,
}

// String renders the code as E followed by four digits.
func (c Code) String() string {
	return fmt.Sprintf("E%04d", int(c))
}

// Category names the range the code falls in, or "unknown".
func (c Code) Category() string {
	if c < 1000 || c > 9999 {
		return "unknown"
	}
	if name, ok := categoryByRange[c/1000]; ok {
		return name
	}
	return "unknown"
}

// Severity grades how far a failure reaches.
type Severity int

const (
	SeverityWarning  Severity = iota // handled, the operation went on
	SeverityError                    // the operation failed
	SeverityCritical                 // the connection may be unusable
)

var severityNames = [...]string{"warning", "error", "critical"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}
