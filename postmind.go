// Package postmind is an interactive client for exploring a relational
// database and pushing Python functions into it.
//
// A Context owns one connection. It reflects the schema into lazy table and
// column fragments, runs ad-hoc SQL with dialect-aware row limits, and
// registers analyst functions as PL/Python stored procedures whose results
// come back as further fragments:
//
//	ctx := context.Background()
//	db, err := postmind.Open(ctx, postmind.Options{Profile: "work"})
//	if err != nil {
//		return err
//	}
//	defer db.Close(ctx)
//
//	track, _ := db.Table("track")
//	rows, _ := track.Head(ctx, 10)
package postmind

import (
	"context"
	"sync"
	"time"

	"github.com/ha1tch/postmind/pkg/catalog"
	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/log"
	"github.com/ha1tch/postmind/pkg/profile"
	"github.com/ha1tch/postmind/pkg/query"
	"github.com/ha1tch/postmind/pkg/remote"
)

// DefaultLimit is the row limit the CLI applies to ad-hoc queries.
const DefaultLimit = 1000

// Options configure Open.
type Options struct {
	// URI is the connection string. When empty the URI is read from Profile.
	URI string
	// Profile names the credential profile (default "default").
	Profile string
	// ProfileDir overrides the directory holding profiles (default $HOME).
	ProfileDir string

	// Logger is used as is and left open by Close. When nil, Open creates
	// one from LogConfig and Close closes it.
	Logger    *log.Logger
	LogConfig *log.Config

	// FunctionDir is loaded into the function library; Watch keeps it
	// current.
	FunctionDir string
	Watch       bool

	// Workers bounds QueryBatch and Column.Summary (default 4).
	Workers int
	// Policy decides how function versions are named in the database.
	Policy remote.Policy

	IncludeSystem bool
	Schemas       []string
}

// Context is an open database session.
type Context struct {
	uri     string
	profile string
	opts    Options

	logger     *log.Logger
	ownsLogger bool

	conn      conn.Conn
	registrar *remote.Registrar
	library   *remote.Library
	watcher   *remote.Watcher

	mu       sync.RWMutex
	snapshot *catalog.Snapshot
	tables   map[string]*query.Table
	order    []string

	closeOnce sync.Once
	closeErr  error
}

var _ query.Session = (*Context)(nil)

// Open resolves the connection URI, connects, reflects the schema and loads
// the function library.
func Open(ctx context.Context, opts Options) (*Context, error) {
	c := &Context{opts: opts, profile: opts.Profile}

	uri := opts.URI
	if uri == "" {
		store, err := profile.NewStore(opts.ProfileDir)
		if err != nil {
			return nil, err
		}
		p, err := store.Load(opts.Profile)
		if err != nil {
			return nil, err
		}
		uri = p.URI
		c.profile = p.Name
	}
	c.uri = uri

	if opts.Logger != nil {
		c.logger = opts.Logger
	} else {
		cfg := log.DefaultConfig()
		if opts.LogConfig != nil {
			cfg = *opts.LogConfig
		}
		c.logger = log.New(cfg)
		c.ownsLogger = true
	}

	start := time.Now()
	cn, err := conn.Open(ctx, uri)
	if err != nil {
		c.logger.System().Error("connection failed", err, "uri", conn.Redact(uri))
		c.closeLogger()
		return nil, err
	}
	c.conn = cn
	c.registrar = remote.NewRegistrar(cn, remote.WithPolicy(opts.Policy), remote.WithLogger(c.logger))
	c.library = remote.NewLibrary()

	c.logger.System().Info("connected",
		"uri", conn.Redact(uri),
		"family", cn.Family().String(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if err := c.RefreshSchema(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}

	if opts.FunctionDir != "" {
		if err := c.LoadFunctions(opts.FunctionDir, opts.Watch); err != nil {
			c.Close(ctx)
			return nil, err
		}
	}
	return c, nil
}

// Close stops the function watcher, closes the connection and, when Open
// created it, the logger.
func (c *Context) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if c.watcher != nil {
			if err := c.watcher.Stop(); err != nil {
				c.logger.System().Warn("watcher stop failed", "error", err.Error())
			}
		}
		if c.conn != nil {
			c.closeErr = c.conn.Close(ctx)
		}
		c.logger.System().Info("closed", "uri", conn.Redact(c.uri))
		c.closeLogger()
	})
	return c.closeErr
}

func (c *Context) closeLogger() {
	if c.ownsLogger {
		c.logger.Close()
	}
}

// Family returns the dialect family of the connection.
func (c *Context) Family() dialect.Family { return c.conn.Family() }

// URI returns the connection string.
func (c *Context) URI() string { return c.uri }

// Profile returns the profile the URI came from, if any.
func (c *Context) Profile() string { return c.profile }

func (c *Context) String() string { return "DB[" + conn.Redact(c.uri) + "]" }

// Logger returns the logging handle.
func (c *Context) Logger() *log.Logger { return c.logger }

// Conn returns the owned connection.
func (c *Context) Conn() conn.Conn { return c.conn }

// Registrar returns the function registrar bound to the connection.
func (c *Context) Registrar() *remote.Registrar { return c.registrar }

// Library returns the function library.
func (c *Context) Library() *remote.Library { return c.library }

// SaveProfile stores the connection URI under name.
func (c *Context) SaveProfile(name string) error {
	store, err := profile.NewStore(c.opts.ProfileDir)
	if err != nil {
		return err
	}
	if err := store.Save(profile.Profile{Name: name, URI: c.uri}); err != nil {
		return err
	}
	c.logger.System().Info("profile saved", "profile", name, "path", store.Path(name))
	return nil
}
