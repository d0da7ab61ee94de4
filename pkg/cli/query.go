package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCommand(opts *RootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a statement and print its rows",
		Example: `  postmind query "select * from artist"
  postmind query --file report.sql --limit 50`,
		Args: func(cmd *cobra.Command, args []string) error {
			if file == "" && len(args) == 0 {
				return fmt.Errorf("query needs a statement or --file")
			}
			if file != "" && len(args) > 0 {
				return fmt.Errorf("query takes a statement or --file, not both")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			out := cmd.OutOrStdout()
			if file != "" {
				// an explicit --limit wins over the file's annotation
				rs, err := db.QueryFile(cmd.Context(), file, opts.Limit)
				if err != nil {
					return err
				}
				return printer(cfg, out).Print(out, rs)
			}
			rs, err := db.Query(cmd.Context(), strings.Join(args, " "), cfg.Limit)
			if err != nil {
				return err
			}
			return printer(cfg, out).Print(out, rs)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the statement from a file")
	return cmd
}

func newHeadCommand(opts *RootOptions) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "head <table>",
		Short: "Print the first rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			rs, err := t.Head(cmd.Context(), n)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return printer(cfg, out).Print(out, rs)
		},
	}
	cmd.Flags().IntVarP(&n, "rows", "n", 6, "number of rows")
	return cmd
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	var noCompress bool
	cmd := &cobra.Command{
		Use:   "export <table> <path>",
		Short: "Write a table to a CSV file on the database host",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close(cmd.Context())

			t, err := db.Table(args[0])
			if err != nil {
				return err
			}
			if err := db.Export(cmd.Context(), t, args[1], !noCompress); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", t.Name(), args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "write plain CSV instead of gzip")
	return cmd
}
