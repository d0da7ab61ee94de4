package postmind

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/errors"
	"github.com/ha1tch/postmind/pkg/naming"
	"github.com/ha1tch/postmind/pkg/query"
	"github.com/ha1tch/postmind/pkg/remote"
)

// Apply registers fn in the database and returns the table of its results
// for args. Serialization problems are reported before anything is sent.
func (c *Context) Apply(ctx context.Context, fn remote.Function, args remote.Args, opts ...remote.CallOption) (*query.Table, error) {
	call, err := c.registrar.Apply(ctx, fn, args, opts...)
	if err != nil {
		return nil, err
	}
	return query.Derived(c, naming.TableName(), call.SQL, call.Columns), nil
}

// ApplyNamed applies the library function called name.
func (c *Context) ApplyNamed(ctx context.Context, name string, args remote.Args, opts ...remote.CallOption) (*query.Table, error) {
	entry, err := c.library.Lookup(name)
	if err != nil {
		return nil, err
	}
	return c.Apply(ctx, entry.Function, args, opts...)
}

// Map registers fn as a per-row function over a reflected table and returns
// the table of its results, one row per input row.
func (c *Context) Map(ctx context.Context, table string, fn remote.Function) (*query.Table, error) {
	if _, err := c.Table(table); err != nil {
		return nil, err
	}
	call, err := c.registrar.Map(ctx, fn, table)
	if err != nil {
		return nil, err
	}
	return query.Derived(c, naming.TableNameFor(table+"_"+fn.Name), call.SQL, call.Columns), nil
}

// Setup installs file_fdw and the CSV foreign server. It returns one row per
// statement with whether it succeeded.
func (c *Context) Setup(ctx context.Context) (*conn.ResultSet, error) {
	fn, err := remote.Builtin(remote.SetupFunction)
	if err != nil {
		return nil, err
	}
	t, err := c.Apply(ctx, fn, remote.Args{})
	if err != nil {
		return nil, err
	}
	rs, err := t.Collect(ctx)
	if err != nil {
		return nil, errors.RemoteExecution(err, fn.Name, t.SQL()).WithOp("Context.Setup").Err()
	}
	c.logger.System().Info("file_fdw setup complete")
	return rs, nil
}

// MountCSV exposes a CSV file on the database host as a foreign table and
// returns its handle. Without explicit column names the header line is read
// on the server.
func (c *Context) MountCSV(ctx context.Context, m dialect.Mount) (*query.Table, error) {
	family := c.Family()
	if family != dialect.Postgres {
		return nil, errors.UnsupportedDialect("file_fdw mount", family.String()).Err()
	}

	var header string
	if len(m.Columns) == 0 && m.Sep != "" {
		line, err := c.readServerLine(ctx, m.Path)
		if err != nil {
			return nil, err
		}
		header = line
	}

	stmts, err := family.ForeignTableStatements(m, m.ColumnNames(header))
	if err != nil {
		return nil, err
	}
	if err := c.conn.ExecTx(ctx, stmts...); err != nil {
		c.logger.System().Error("mount failed", err, "table", m.Table, "path", m.Path)
		return nil, err
	}
	c.logger.System().Info("csv mounted", "table", m.Table, "path", m.Path)

	if err := c.RefreshSchema(ctx); err != nil {
		return nil, err
	}
	return c.Table(m.Table)
}

func (c *Context) readServerLine(ctx context.Context, path string) (string, error) {
	fn, err := remote.Builtin(remote.CSVHeaderFunction)
	if err != nil {
		return "", err
	}
	t, err := c.Apply(ctx, fn, remote.Positional(path))
	if err != nil {
		return "", err
	}
	rs, err := t.Collect(ctx)
	if err != nil {
		return "", errors.RemoteExecution(err, fn.Name, t.SQL()).WithField("path", path).Err()
	}
	line, _ := rs.Scalar().(string)
	return line, nil
}

// TextFile mounts a delimited text file with a header line. The table is
// named after the file.
func (c *Context) TextFile(ctx context.Context, path, sep string) (*query.Table, error) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return c.MountCSV(ctx, dialect.Mount{
		Path:   path,
		Table:  naming.SafeIdentifier(base),
		Sep:    sep,
		Header: true,
	})
}

// LoadFunctions adds the functions under dir to the library. With watch the
// directory is monitored and changed functions that were already deployed
// are registered again.
func (c *Context) LoadFunctions(dir string, watch bool) error {
	result, err := remote.NewLoader(c.logger).LoadInto(c.library, dir)
	if err != nil {
		return err
	}
	for _, le := range result.Errors {
		c.logger.Function().Warn("function not loaded", "path", le.Path, "error", le.Error.Error())
	}
	if !watch || c.watcher != nil {
		return nil
	}

	w, err := remote.NewWatcher(dir, c.library, c.logger,
		remote.WithOnReload(c.onFunctionReload),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFunctionLoad, "cannot watch function directory").
			WithField("path", dir).Err()
	}
	if err := w.Start(); err != nil {
		return errors.Wrap(err, errors.ErrCodeFunctionLoad, "cannot watch function directory").
			WithField("path", dir).Err()
	}
	c.watcher = w
	return nil
}

func (c *Context) onFunctionReload(entry *remote.Entry, event string) {
	if event != remote.EventModified {
		return
	}
	name, err := c.registrar.DeployedName(entry.Function)
	if err != nil {
		return
	}
	// only functions deployed under their own name are kept current
	if _, ok := c.registrar.Deployed()[entry.Function.Name]; !ok || name != entry.Function.Name {
		return
	}
	if _, err := c.registrar.Register(context.Background(), entry.Function); err != nil {
		c.logger.Function().Error("redeploy failed", err, "function", entry.Function.Name)
	}
}
