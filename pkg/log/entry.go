package log

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"
)

// Entry is one log record.
type Entry struct {
	Time     time.Time              `json:"time"`
	Level    Level                  `json:"level"`
	Category Category               `json:"category"`
	Message  string                 `json:"message"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Caller   string                 `json:"caller,omitempty"`
}

// fieldMap turns alternating keys and values into a map. A trailing key
// without a value is kept with a nil value.
func fieldMap(kv []interface{}) map[string]interface{} {
	if len(kv) == 0 {
		return nil
	}
	m := make(map[string]interface{}, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		if i+1 < len(kv) {
			m[key] = kv[i+1]
		} else {
			m[key] = nil
		}
	}
	return m
}

func callerAt(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func (e *Entry) encode(format Format) []byte {
	if format == FormatJSON {
		data, err := json.Marshal(e)
		if err != nil {
			data, _ = json.Marshal(Entry{Time: e.Time, Level: e.Level, Category: e.Category,
				Message: e.Message, Error: "unencodable fields: " + err.Error()})
		}
		return append(data, '\n')
	}
	return e.appendText(nil)
}

// appendText writes "time LEVEL [category] message k=v ... error=..." with
// the fields sorted by key.
func (e *Entry) appendText(b []byte) []byte {
	b = e.Time.AppendFormat(b, "2006-01-02 15:04:05.000")
	b = append(b, ' ')
	b = append(b, fmt.Sprintf("%-5s", e.Level)...)
	b = append(b, " ["...)
	b = append(b, e.Category...)
	b = append(b, "] "...)
	if e.Caller != "" {
		b = append(b, e.Caller...)
		b = append(b, ' ')
	}
	b = append(b, e.Message...)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b = append(b, ' ')
		b = append(b, k...)
		b = append(b, '=')
		b = append(b, fmt.Sprint(e.Fields[k])...)
	}
	if e.Error != "" {
		b = append(b, " error="...)
		b = strconv.AppendQuote(b, e.Error)
	}
	return append(b, '\n')
}
