package remote

import (
	"fmt"
	"strings"
)

// loader is the PL/Python prologue shared by every generated function. It
// decodes the record once per backend session and re-decodes it when the
// digest embedded in the body changes.
const loader = `import base64
import json

_key = '%s'
_digest = '%s'
_cached = SD.get(_key)
if _cached is None or _cached[0] != _digest:
    _record = json.loads(base64.b64decode('%s').decode('utf-8'))
    if _record.get('format') != %d:
        plpy.error('unsupported function record format %%r' %% (_record.get('format'),))
    _scope = {'__name__': _key, 'plpy': plpy, 'json': json}
    exec(_record['code'], _scope)
    _cached = (_digest, _scope[_record['entry']])
    SD[_key] = _cached

`

const invokeArgs = `_args, _kwargs = json.loads(inargs) if inargs is not None else ([], {})
_result = _cached[1](*_args, **_kwargs)
`

const invokeRow = `_result = _cached[1](line)
`

const wrapSet = `if _result is None:
    return []
if isinstance(_result, (str, bytes, dict)) or not hasattr(_result, '__iter__'):
    _result = [_result]
`

// coercion returns the tail of the body converting _result to returns.
func coercion(returns string) string {
	elem := elementType(returns)
	if returnsSet(returns) {
		if isJSONType(elem) {
			return wrapSet + "return [json.dumps(_r) for _r in _result]\n"
		}
		return wrapSet + "return list(_result)\n"
	}
	if isJSONType(elem) {
		return "return json.dumps(_result)\n"
	}
	return "return _result\n"
}

func body(deployed, digest, payload, invoke, returns string) string {
	var b strings.Builder
	fmt.Fprintf(&b, loader, deployed, digest, payload, RecordFormat)
	b.WriteString(invoke)
	b.WriteString(coercion(returns))
	return b.String()
}

// CreateStatement returns the CREATE OR REPLACE FUNCTION statement for fn
// deployed under its own name.
func CreateStatement(fn Function) (string, error) {
	return createStatement(fn, fn.Name)
}

func createStatement(fn Function, deployed string) (string, error) {
	payload, digest, err := fn.Encode()
	if err != nil {
		return "", err
	}
	return createSQL(fn, deployed, payload, digest), nil
}

func createSQL(fn Function, deployed, payload, digest string) string {
	fn = fn.WithDefaults()
	return fmt.Sprintf("CREATE OR REPLACE FUNCTION %s(inargs jsonb) RETURNS %s AS $$\n%s$$ LANGUAGE %s SECURITY DEFINER;",
		deployed, fn.Returns, body(deployed, digest, payload, invokeArgs, fn.Returns), fn.Language)
}

// RowStatement returns the statement creating a per-row function over the
// composite type of table: <name>(line <table>) RETURNS <returns>.
func RowStatement(fn Function, table string) (string, error) {
	payload, digest, err := fn.Encode()
	if err != nil {
		return "", err
	}
	return rowSQL(fn, fn.Name, table, payload, digest), nil
}

func rowSQL(fn Function, deployed, table, payload, digest string) string {
	fn = fn.WithDefaults()
	return fmt.Sprintf("CREATE OR REPLACE FUNCTION %s(line %s) RETURNS %s AS $$\n%s$$ LANGUAGE %s SECURITY DEFINER;",
		deployed, table, fn.Returns, body(deployed, digest, payload, invokeRow, fn.Returns), fn.Language)
}
