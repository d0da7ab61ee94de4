// Package naming generates collision-resistant names for temporary tables,
// derived query aliases and stored functions.
package naming

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultPrefix is used for generated table names.
const DefaultPrefix = "tbl_"

var (
	unsafeChars  = regexp.MustCompile(`[^a-z0-9_]`)
	leadingDigit = regexp.MustCompile(`^[0-9]`)
	identifier   = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

// Generate returns prefix followed by a random UUID with dashes replaced by
// underscores, so the result is usable as an unquoted SQL identifier.
func Generate(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "_")
}

// TableName returns a fresh "tbl_<uuid>" name.
func TableName() string {
	return Generate(DefaultPrefix)
}

// TableNameFor returns a fresh name derived from an existing table name.
func TableNameFor(base string) string {
	if base == "" {
		return TableName()
	}
	return Generate(SafeIdentifier(base) + "_")
}

// SafeIdentifier maps an arbitrary name onto a lowercase SQL identifier.
//
//	"Add"           -> "add"
//	"my-func v2"    -> "my_func_v2"
//	"123numeric"    -> "_123numeric"
//	"$$"            -> "unnamed"
func SafeIdentifier(name string) string {
	safe := unsafeChars.ReplaceAllString(strings.ToLower(name), "_")

	for strings.Contains(safe, "__") {
		safe = strings.ReplaceAll(safe, "__", "_")
	}
	safe = strings.Trim(safe, "_")

	if leadingDigit.MatchString(safe) {
		safe = "_" + safe
	}
	if safe == "" {
		safe = "unnamed"
	}
	return safe
}

// IsIdentifier reports whether name is already a lowercase SQL identifier
// that needs no quoting.
func IsIdentifier(name string) bool {
	return identifier.MatchString(name)
}

// Qualified appends the first 8 characters of digest to name. It is used
// for version-qualified function names.
func Qualified(name, digest string) string {
	if len(digest) > 8 {
		digest = digest[:8]
	}
	if digest == "" {
		return name
	}
	return name + "_" + digest
}
