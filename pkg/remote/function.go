// Package remote ships analyst functions into the database and calls them
// through SQL.
//
// A Function is an explicit, versioned record: a name, the Python source
// defining an entry point, and the declared SQL output type. The record is
// encoded as JSON, base64-wrapped and embedded in a CREATE OR REPLACE
// FUNCTION statement whose PL/Python body decodes it once per backend
// session, decodes the (args, kwargs) payload, invokes the entry point and
// coerces the result to the declared output type.
//
// Record format 1:
//
//	{"format":1,"name":"add","version":"1","entry":"add","params":["a","b"],
//	 "code":"def add(a, b): ...","returns":"setof int","language":"plpython3u"}
//
// The digest of a record is the SHA-256 of its encoded payload. It keys the
// session-local cache inside the database and the registrar's
// already-deployed check, so the record carries every field that shapes the
// generated statement.
package remote

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/naming"
)

// RecordFormat is the version of the encoded function record.
const RecordFormat = 1

// Defaults applied to empty Function fields.
const (
	DefaultLanguage = "plpython3u"
	DefaultReturns  = "setof jsonb"
	DefaultVersion  = "1"
)

// Languages lists the procedural languages a record can target.
var Languages = map[string]bool{
	"plpython3u": true,
	"plpythonu":  true,
	"plpython2u": true,
}

var (
	pythonIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	returnsType = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ .\[\]()]*$`)
)

// Function is a named, serializable function record.
type Function struct {
	Name     string
	Version  string
	Language string
	Entry    string
	Params   []string
	Code     string
	Returns  string
}

// WithDefaults returns a copy of f with empty fields defaulted.
func (f Function) WithDefaults() Function {
	if f.Version == "" {
		f.Version = DefaultVersion
	}
	if f.Language == "" {
		f.Language = DefaultLanguage
	}
	if f.Entry == "" {
		f.Entry = f.Name
	}
	if f.Returns == "" {
		f.Returns = DefaultReturns
	}
	if f.Params == nil {
		f.Params = []string{}
	}
	return f
}

// Validate checks that the record can be shipped. It never touches the
// network.
func (f Function) Validate() error {
	f = f.WithDefaults()
	switch {
	case !naming.IsIdentifier(f.Name):
		return errors.Serialization(f.Name, "function name must be a lowercase SQL identifier").Err()
	case strings.TrimSpace(f.Code) == "":
		return errors.Serialization(f.Name, "function code is empty").Err()
	case !Languages[f.Language]:
		return errors.Serialization(f.Name, "unsupported language "+f.Language).Err()
	case !pythonIdent.MatchString(f.Entry):
		return errors.Serialization(f.Name, "invalid entry point "+f.Entry).Err()
	case !returnsType.MatchString(f.Returns):
		return errors.Serialization(f.Name, "invalid output type "+f.Returns).Err()
	}
	for _, p := range f.Params {
		if !pythonIdent.MatchString(p) {
			return errors.Serialization(f.Name, "invalid parameter name "+p).Err()
		}
	}
	return nil
}

// record is the JSON shape of an encoded function.
type record struct {
	Format   int      `json:"format"`
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Entry    string   `json:"entry"`
	Params   []string `json:"params"`
	Code     string   `json:"code"`
	Returns  string   `json:"returns"`
	Language string   `json:"language"`
}

// Encode validates f and returns the base64 payload and its digest.
func (f Function) Encode() (payload, digest string, err error) {
	if err := f.Validate(); err != nil {
		return "", "", err
	}
	f = f.WithDefaults()

	data, err := json.Marshal(record{
		Format:   RecordFormat,
		Name:     f.Name,
		Version:  f.Version,
		Entry:    f.Entry,
		Params:   f.Params,
		Code:     f.Code,
		Returns:  f.Returns,
		Language: f.Language,
	})
	if err != nil {
		return "", "", errors.Serialization(f.Name, err.Error()).Err()
	}

	payload = base64.StdEncoding.EncodeToString(data)
	sum := sha256.Sum256([]byte(payload))
	return payload, hex.EncodeToString(sum[:]), nil
}

// Digest returns the digest of the encoded record.
func (f Function) Digest() (string, error) {
	_, digest, err := f.Encode()
	return digest, err
}

// Decode reverses Encode. It is used to inspect deployed payloads.
func Decode(payload string) (Function, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Function{}, errors.Serialization("payload", err.Error()).Err()
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Function{}, errors.Serialization("payload", err.Error()).Err()
	}
	if rec.Format != RecordFormat {
		return Function{}, errors.Newf(errors.ErrCodeSerialization, "unsupported record format %d", rec.Format).Err()
	}
	return Function{
		Name:     rec.Name,
		Version:  rec.Version,
		Language: rec.Language,
		Entry:    rec.Entry,
		Params:   rec.Params,
		Code:     rec.Code,
		Returns:  rec.Returns,
	}, nil
}

// returnsSet reports whether the output type is set-returning.
func returnsSet(returns string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(returns)), "setof ")
}

// elementType strips "setof " from an output type.
func elementType(returns string) string {
	r := strings.TrimSpace(returns)
	if returnsSet(r) {
		return strings.TrimSpace(r[len("setof "):])
	}
	return r
}

func isJSONType(t string) bool {
	t = strings.ToLower(t)
	return t == "json" || t == "jsonb"
}

// Args are the positional and keyword arguments of a call.
type Args struct {
	Positional []interface{}
	Keyword    map[string]interface{}
}

// Positional builds Args from positional values.
func Positional(values ...interface{}) Args {
	return Args{Positional: values}
}

// Encode renders the arguments as the JSON pair [args, kwargs].
func (a Args) Encode(function string) (string, error) {
	pos := a.Positional
	if pos == nil {
		pos = []interface{}{}
	}
	kw := a.Keyword
	if kw == nil {
		kw = map[string]interface{}{}
	}
	data, err := json.Marshal([]interface{}{pos, kw})
	if err != nil {
		return "", errors.Serialization(function, err.Error()).Err()
	}
	return string(data), nil
}
