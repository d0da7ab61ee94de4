package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ha1tch/postmind/pkg/dialect"
	"github.com/ha1tch/postmind/pkg/log"
	"github.com/ha1tch/postmind/pkg/remote"
	"github.com/ha1tch/postmind/pkg/render"
)

func newFunctionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "functions [dir]",
		Short: "List the functions in a library directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.settings()
			if err != nil {
				return err
			}
			dir := cfg.FunctionDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return fmt.Errorf("no function directory given")
			}

			lib := remote.NewLibrary()
			result, err := remote.NewLoader(log.Discard()).LoadInto(lib, dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := make([][]string, 0, lib.Count())
			for _, e := range lib.List() {
				fn := e.Function.WithDefaults()
				rows = append(rows, []string{
					fn.Name,
					fn.Version,
					"(" + strings.Join(fn.Params, ", ") + ")",
					fn.Returns,
					e.Description,
				})
			}
			fmt.Fprint(out, render.Grid([]string{"Name", "Version", "Params", "Returns", "Description"}, rows))
			for _, le := range result.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %v\n", le.Path, le.Error)
			}
			return nil
		},
	}
}

func newApplyCommand(opts *RootOptions) *cobra.Command {
	var (
		meta     string
		rowIndex int64
	)
	cmd := &cobra.Command{
		Use:   "apply <function> [args-json]",
		Short: "Register a library function and print the rows it returns",
		Long: `apply registers a function from the library directory (--functions)
and calls it. A JSON array supplies positional arguments, a JSON object
keyword arguments.`,
		Example: `  postmind --functions ./fn apply add '[2, 3]'
  postmind --functions ./fn apply greet '{"name": "ada"}' --meta '{"run": 1}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var callArgs remote.Args
			if len(args) == 2 {
				parsed, err := parseArgs(args[1])
				if err != nil {
					return err
				}
				callArgs = parsed
			}
			var callOpts []remote.CallOption
			if meta != "" {
				var v interface{}
				if err := json.Unmarshal([]byte(meta), &v); err != nil {
					return fmt.Errorf("invalid --meta: %w", err)
				}
				callOpts = append(callOpts, remote.WithMeta(v))
			}
			if cmd.Flags().Changed("row-index") {
				callOpts = append(callOpts, remote.WithRowIndex(rowIndex))
			}

			settings, err := opts.settings()
			if err != nil {
				return err
			}
			if settings.FunctionDir == "" {
				return fmt.Errorf("apply needs a function directory (--functions)")
			}
			db, cfg, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			t, err := db.ApplyNamed(cmd.Context(), args[0], callArgs, callOpts...)
			if err != nil {
				return err
			}
			rs, err := t.Collect(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return printer(cfg, out).Print(out, rs)
		},
	}
	cmd.Flags().StringVar(&meta, "meta", "", "JSON value returned as the meta column")
	cmd.Flags().Int64Var(&rowIndex, "row-index", 0, "value returned as the row_index column")
	return cmd
}

// parseArgs reads call arguments from JSON. Arrays are positional, objects
// are keyword arguments and any other value is a single positional argument.
func parseArgs(s string) (remote.Args, error) {
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return remote.Args{}, fmt.Errorf("invalid arguments: %w", err)
	}
	switch a := v.(type) {
	case []interface{}:
		return remote.Args{Positional: a}, nil
	case map[string]interface{}:
		return remote.Args{Keyword: a}, nil
	default:
		return remote.Positional(a), nil
	}
}

func newSetupCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Install file_fdw and the CSV foreign server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			rs, err := db.Setup(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return printer(cfg, out).Print(out, rs)
		},
	}
}

func newMountCommand(opts *RootOptions) *cobra.Command {
	var (
		sep      string
		noHeader bool
		columns  []string
		types    []string
	)
	cmd := &cobra.Command{
		Use:   "mount <path> <table>",
		Short: "Expose a CSV file on the database host as a foreign table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			t, err := db.MountCSV(cmd.Context(), dialect.Mount{
				Path:    args[0],
				Table:   args[1],
				Sep:     sep,
				Header:  !noHeader,
				Columns: columns,
				Types:   types,
			})
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), t.Describe())
			return nil
		},
	}
	cmd.Flags().StringVar(&sep, "sep", ",", "field delimiter (empty mounts one value column)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "the file has no header line")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "column names (default from the header)")
	cmd.Flags().StringSliceVar(&types, "types", nil, "column types (default text)")
	return cmd
}
