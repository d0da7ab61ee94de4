// Package cli implements the postmind command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ha1tch/postmind"
	"github.com/ha1tch/postmind/pkg/config"
	"github.com/ha1tch/postmind/pkg/render"
	"github.com/ha1tch/postmind/pkg/version"
)

// RootOptions holds the global flags.
type RootOptions struct {
	URI        string
	Profile    string
	ProfileDir string
	ConfigPath string
	Format     string
	LogLevel   string
	Functions  string
	Limit      int

	// Getenv reads the environment (os.Getenv when nil).
	Getenv func(string) string
	// Stdin feeds the REPL.
	Stdin io.Reader
}

// NewRootCommand creates the postmind command tree.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "postmind",
		Short: "Explore a database and run Python functions inside it",
		Long: `postmind connects to a database given by --uri or a saved profile,
lists its tables and columns, runs queries with a row limit, and registers
Python functions as PL/Python stored procedures.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := render.ParseFormat(opts.Format); err != nil {
				return err
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.URI, "uri", "", "connection uri (overrides the profile)")
	flags.StringVarP(&opts.Profile, "profile", "p", "", "credential profile (default \"default\")")
	flags.StringVar(&opts.ProfileDir, "profile-dir", "", "directory holding profiles (default $HOME)")
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.postmind.yaml)")
	flags.StringVar(&opts.Format, "format", "text", "output format (text|unicode|csv|json)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error|off)")
	flags.StringVar(&opts.Functions, "functions", "", "function library directory")
	flags.IntVar(&opts.Limit, "limit", 0, "row limit for queries (0 uses the configured default)")

	cmd.AddCommand(newProfileCommand(opts))
	cmd.AddCommand(newTablesCommand(opts))
	cmd.AddCommand(newColumnsCommand(opts))
	cmd.AddCommand(newDescribeCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newHeadCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newFunctionsCommand(opts))
	cmd.AddCommand(newApplyCommand(opts))
	cmd.AddCommand(newSetupCommand(opts))
	cmd.AddCommand(newMountCommand(opts))
	cmd.AddCommand(newReplCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &RootOptions{Stdin: stdin}
	cmd := NewRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return nil
		},
	}
}

func (o *RootOptions) getenv(key string) string {
	if o.Getenv != nil {
		return o.Getenv(key)
	}
	return os.Getenv(key)
}

// settings merges defaults, the config file, the environment and flags.
func (o *RootOptions) settings() (config.Config, error) {
	path, optional := o.ConfigPath, false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(o.getenv); err != nil {
		return cfg, err
	}

	if o.URI != "" {
		cfg.URI = o.URI
	}
	if o.Profile != "" {
		cfg.Profile = o.Profile
	}
	if o.ProfileDir != "" {
		cfg.ProfileDir = o.ProfileDir
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.Functions != "" {
		cfg.FunctionDir = o.Functions
	}
	if o.Limit > 0 {
		cfg.Limit = o.Limit
	}
	if o.Format != "" && o.Format != "text" {
		cfg.Output = o.Format
	}
	return cfg, cfg.Validate()
}

// open connects using the merged settings. Logs go to the command's
// stderr unless the config names a log file.
func (o *RootOptions) open(cmd *cobra.Command) (*postmind.Context, config.Config, error) {
	cfg, err := o.settings()
	if err != nil {
		return nil, cfg, err
	}
	popts, err := cfg.Options()
	if err != nil {
		return nil, cfg, err
	}
	popts.LogConfig.Output = cmd.ErrOrStderr()

	db, err := postmind.Open(cmd.Context(), popts)
	if err != nil {
		return nil, cfg, err
	}
	return db, cfg, nil
}

// printer returns the result printer for the configured format. Colour is
// used only when writing to a terminal.
func printer(cfg config.Config, w io.Writer) render.Printer {
	format, _ := render.ParseFormat(cfg.Output)
	colour := false
	if f, ok := w.(*os.File); ok {
		colour = term.IsTerminal(int(f.Fd()))
	}
	return render.Printer{Format: format, Colour: colour}
}
