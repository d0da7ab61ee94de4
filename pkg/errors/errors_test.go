package errors

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestCodeCategory(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{ErrCodeCredentialMissing, CategoryCredential},
		{ErrCodeConfigParse, CategoryCredential},
		{ErrCodeConnectionFailed, CategoryConnection},
		{ErrCodeSerialization, CategorySerialization},
		{ErrCodeRemoteExecution, CategoryExecution},
		{ErrCodeSchemaReflection, CategorySchema},
		{ErrCodeTypeMismatch, CategoryType},
		{ErrCodeInternal, CategoryInternal},
		{Code(7000), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.code.Category(); got != tt.want {
			t.Errorf("%s.Category() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := RemoteExecution(fmt.Errorf("syntax error at or near \"$$\""), "add", "CREATE OR REPLACE FUNCTION add").Err()

	msg := err.Error()
	if !strings.HasPrefix(msg, "E4002: remote function add failed") {
		t.Errorf("unexpected message: %s", msg)
	}
	if !strings.Contains(msg, "syntax error") {
		t.Errorf("cause missing from message: %s", msg)
	}

	fields := GetFields(err)
	if fields["function"] != "add" {
		t.Errorf("function field = %v", fields["function"])
	}
	if fields["sql"] != "CREATE OR REPLACE FUNCTION add" {
		t.Errorf("sql field = %v", fields["sql"])
	}
}

func TestUnwrapChain(t *testing.T) {
	err := Query(context.Canceled, "select 1").WithOp("Context.Query").Err()

	if !Is(err, context.Canceled) {
		t.Error("expected errors.Is to find context.Canceled")
	}

	var e *Error
	if !As(err, &e) {
		t.Fatal("expected *Error")
	}
	if e.OpName != "Context.Query" {
		t.Errorf("OpName = %q", e.OpName)
	}
}

func TestIsCodeAndCategory(t *testing.T) {
	err := Credential("default", "file not found").Err()

	if !IsCode(err, ErrCodeCredentialMissing) {
		t.Error("expected credential code")
	}
	if !IsCategory(err, CategoryCredential) {
		t.Error("expected credential category")
	}
	if IsCategory(nil, CategoryCredential) {
		t.Error("nil error must not match a category")
	}
	if GetCode(fmt.Errorf("plain")) != ErrCodeInternal {
		t.Error("plain errors map to internal")
	}
}

func TestDetailedFormat(t *testing.T) {
	err := TypeMismatch("column %q is not an array", "price").
		WithOp("Column.Index").
		WithStack().
		Build()

	out := fmt.Sprintf("%+v", err)
	for _, want := range []string{"E6001", "Operation: Column.Index", "Stack:"} {
		if !strings.Contains(out, want) {
			t.Errorf("detailed format missing %q:\n%s", want, out)
		}
	}
}

func TestBuilderReuse(t *testing.T) {
	b := NotFound(ErrCodeTableNotFound, "table", "album")
	first := b.Build()
	second := b.WithField("schema", "public").Warning().Build()

	if _, ok := first.Fields["schema"]; ok {
		t.Error("later fields leaked into an earlier build")
	}
	if second.Field("schema") != "public" {
		t.Errorf("schema field = %v", second.Field("schema"))
	}
	if first.Severity != SeverityError || second.Severity != SeverityWarning {
		t.Errorf("severities = %s, %s", first.Severity, second.Severity)
	}
	if Severity(7).String() != "unknown" {
		t.Error("out of range severity")
	}
}
