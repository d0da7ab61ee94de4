package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/log"
	"github.com/ha1tch/postmind/pkg/naming"
	"github.com/ha1tch/postmind/pkg/query"
)

// Policy decides the deployed name of a function.
type Policy int

const (
	// LastWriteWins deploys every version under the function's own name;
	// the most recent registration replaces the body.
	LastWriteWins Policy = iota
	// VersionQualified deploys each record under name_<digest8>, so
	// concurrent sessions never overwrite each other's versions.
	VersionQualified
)

func (p Policy) String() string {
	if p == VersionQualified {
		return "version-qualified"
	}
	return "last-write-wins"
}

// ParsePolicy maps a policy name onto a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "last-write-wins", "lww":
		return LastWriteWins, nil
	case "version-qualified", "versioned":
		return VersionQualified, nil
	}
	return LastWriteWins, errors.Newf(errors.ErrCodeConfigInvalid, "unknown registration policy %q", s).Err()
}

// Executor runs registration statements.
type Executor interface {
	Family() dialect.Family
	ExecTx(ctx context.Context, stmts ...string) error
}

// Registrar installs function records as stored procedures and builds the
// SQL calling them. It remembers what it deployed so re-applying an
// unchanged record costs no round trip.
type Registrar struct {
	exec   Executor
	policy Policy
	logger *log.Logger

	mu       sync.Mutex
	deployed map[string]string // deployed name -> digest
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithPolicy sets the naming policy.
func WithPolicy(p Policy) RegistrarOption {
	return func(r *Registrar) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) RegistrarOption {
	return func(r *Registrar) { r.logger = l }
}

// NewRegistrar creates a registrar executing through exec.
func NewRegistrar(exec Executor, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		exec:     exec,
		deployed: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the naming policy.
func (r *Registrar) Policy() Policy { return r.policy }

// DeployedName returns the SQL name fn is installed under.
func (r *Registrar) DeployedName(fn Function) (string, error) {
	digest, err := fn.Digest()
	if err != nil {
		return "", err
	}
	return r.deployedName(fn, digest), nil
}

func (r *Registrar) deployedName(fn Function, digest string) string {
	if r.policy == VersionQualified {
		return naming.Qualified(fn.Name, digest)
	}
	return fn.Name
}

// Register installs fn. The statement runs in its own transaction; a failure
// is rolled back and returned as a remote-execution error naming the
// function. Registering a record this registrar already deployed is a no-op.
func (r *Registrar) Register(ctx context.Context, fn Function) (string, error) {
	if err := fn.Validate(); err != nil {
		return "", err
	}
	if family := r.exec.Family(); !family.SupportsRemoteFunctions() {
		return "", errors.UnsupportedDialect("remote functions", family.String()).Err()
	}

	payload, digest, err := fn.Encode()
	if err != nil {
		return "", err
	}
	name := r.deployedName(fn, digest)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deployed[name] == digest {
		r.logger.Function().Debug("function already registered", "function", name, "digest", digest[:8])
		return name, nil
	}

	stmt := createSQL(fn, name, payload, digest)

	start := time.Now()
	if err := r.exec.ExecTx(ctx, stmt); err != nil {
		r.logger.Function().Error("function registration failed", err, "function", name)
		return "", errors.RemoteExecution(err, name, stmt).WithOp("Registrar.Register").Err()
	}

	event := "created"
	if _, ok := r.deployed[name]; ok {
		event = "replaced"
	}
	r.deployed[name] = digest

	r.logger.Function().Info("function registered",
		"function", name,
		"version", fn.WithDefaults().Version,
		"digest", digest[:8],
		"event", event,
		"policy", r.policy.String(),
	)
	r.logger.Performance().Debug("function registration",
		"function", name, "elapsed_ms", time.Since(start).Milliseconds())
	return name, nil
}

// Forget drops the deployed record for name, forcing the next Register to
// issue the statement again.
func (r *Registrar) Forget(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deployed, name)
}

// Deployed returns a copy of the deployed name -> digest map.
func (r *Registrar) Deployed() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.deployed))
	for k, v := range r.deployed {
		out[k] = v
	}
	return out
}

// Call is a generated call to a deployed function.
type Call struct {
	Function string
	SQL      string
	Columns  []query.ColumnDef
}

// CallOption adjusts a call.
type CallOption func(*callOptions)

type callOptions struct {
	meta     interface{}
	hasMeta  bool
	rowIndex int64
	hasIndex bool
	returns  string
}

// WithMeta prepends a jsonb "meta" column carrying v.
func WithMeta(v interface{}) CallOption {
	return func(o *callOptions) {
		o.meta = v
		o.hasMeta = true
	}
}

// WithRowIndex prepends a bigint "row_index" column.
func WithRowIndex(n int64) CallOption {
	return func(o *callOptions) {
		o.rowIndex = n
		o.hasIndex = true
	}
}

// WithReturns overrides the declared output type of the function.
func WithReturns(returns string) CallOption {
	return func(o *callOptions) { o.returns = returns }
}

func applyOptions(fn Function, opts []CallOption) (Function, callOptions) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.returns != "" {
		fn.Returns = o.returns
	}
	return fn, o
}

// Call builds the SELECT invoking fn with args. Nothing is executed.
//
//	SELECT '<meta>'::jsonb AS meta, <n>::bigint AS row_index, * FROM name('<payload>'::jsonb)
func (r *Registrar) Call(fn Function, args Args, opts ...CallOption) (*Call, error) {
	fn, o := applyOptions(fn, opts)
	digest, err := fn.Digest()
	if err != nil {
		return nil, err
	}
	return r.call(fn, r.deployedName(fn, digest), args, o)
}

func (r *Registrar) call(fn Function, name string, args Args, o callOptions) (*Call, error) {
	fn = fn.WithDefaults()
	family := r.exec.Family()

	payload, err := args.Encode(fn.Name)
	if err != nil {
		return nil, err
	}

	var cols []string
	var defs []query.ColumnDef
	if o.hasMeta {
		meta, err := json.Marshal(o.meta)
		if err != nil {
			return nil, errors.Serialization(fn.Name, "metadata: "+err.Error()).Err()
		}
		cols = append(cols, family.QuoteLiteral(string(meta))+"::jsonb AS meta")
		defs = append(defs, query.ColumnDef{Name: "meta", Type: "jsonb"})
	}
	if o.hasIndex {
		cols = append(cols, fmt.Sprintf("%d::bigint AS row_index", o.rowIndex))
		defs = append(defs, query.ColumnDef{Name: "row_index", Type: "int8"})
	}
	cols = append(cols, "*")

	elem := elementType(fn.Returns)
	defs = append(defs, query.ColumnDef{Name: name, Type: elem, Array: strings.HasSuffix(elem, "[]")})

	sql := fmt.Sprintf("SELECT %s FROM %s(%s::jsonb)", strings.Join(cols, ", "), name, family.QuoteLiteral(payload))
	return &Call{Function: name, SQL: sql, Columns: defs}, nil
}

// Apply validates fn and args, registers fn and returns the call. Arguments
// and record are encoded before any statement is sent, so serialization
// failures never reach the database.
func (r *Registrar) Apply(ctx context.Context, fn Function, args Args, opts ...CallOption) (*Call, error) {
	fn, o := applyOptions(fn, opts)
	if err := fn.Validate(); err != nil {
		return nil, err
	}
	if _, err := args.Encode(fn.Name); err != nil {
		return nil, err
	}
	if o.hasMeta {
		if _, err := json.Marshal(o.meta); err != nil {
			return nil, errors.Serialization(fn.Name, "metadata: "+err.Error()).Err()
		}
	}

	name, err := r.Register(ctx, fn)
	if err != nil {
		return nil, err
	}
	return r.call(fn, name, args, o)
}

// Map registers fn as a per-row function over table and returns the call
// selecting fn(t.*) for every row. The row arrives in Python as a dict.
// Row functions default to returning jsonb and follow the registrar's
// naming policy.
func (r *Registrar) Map(ctx context.Context, fn Function, table string) (*Call, error) {
	if fn.Returns == "" {
		fn.Returns = "jsonb"
	}
	payload, digest, err := fn.Encode()
	if err != nil {
		return nil, err
	}
	family := r.exec.Family()
	if !family.SupportsRemoteFunctions() {
		return nil, errors.UnsupportedDialect("remote functions", family.String()).Err()
	}

	name := r.deployedName(fn, digest)
	quoted := family.QuoteIdent(table)
	stmt := rowSQL(fn, name, quoted, payload, digest)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := name + "(" + table + ")"
	if r.deployed[key] != digest {
		if err := r.exec.ExecTx(ctx, stmt); err != nil {
			return nil, errors.RemoteExecution(err, name, stmt).WithOp("Registrar.Map").Err()
		}
		r.deployed[key] = digest
		r.logger.Function().Info("row function registered", "function", name, "table", table, "digest", digest[:8])
	}

	elem := elementType(fn.Returns)
	return &Call{
		Function: name,
		SQL:      fmt.Sprintf("SELECT %s(t.*) AS %s FROM %s t", name, name, quoted),
		Columns:  []query.ColumnDef{{Name: name, Type: elem, Array: strings.HasSuffix(elem, "[]")}},
	}, nil
}
