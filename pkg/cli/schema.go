package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ha1tch/postmind"
)

func newTablesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables [glob]",
		Short: "List tables, optionally filtered by a shell pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			tables := db.Tables()
			if len(args) == 1 {
				if tables, err = db.FindTable(args[0]); err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				list := make(map[string][]string, len(tables))
				for _, t := range tables {
					list[t.Name()] = t.ColumnNames()
				}
				return writeJSON(out, list)
			}
			fmt.Fprint(out, tables.Describe())
			return nil
		},
	}
}

func newColumnsCommand(opts *RootOptions) *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "columns <glob>",
		Short: "Find columns by name pattern and type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			cols, err := db.FindColumn(args[0], types...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				list := make([]map[string]string, len(cols))
				for i, c := range cols {
					list[i] = map[string]string{"table": c.Table().Name(), "column": c.Name(), "type": c.Type()}
				}
				return writeJSON(out, list)
			}
			fmt.Fprint(out, cols.Describe())
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "restrict to these column types")
	return cmd
}

func newDescribeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <table>",
		Short: "Show the columns and keys of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())
			return describe(db, cmd.OutOrStdout(), args[0])
		},
	}
}

func describe(db *postmind.Context, w io.Writer, name string) error {
	t, err := db.Table(name)
	if err != nil {
		return err
	}
	fmt.Fprint(w, t.Describe())
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
