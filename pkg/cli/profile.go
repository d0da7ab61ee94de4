package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ha1tch/postmind/pkg/conn"
	"github.com/ha1tch/postmind/pkg/profile"
	"github.com/ha1tch/postmind/pkg/render"
)

func newProfileCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved connection profiles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "save <name> <uri>",
		Short: "Save a connection uri under a profile name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := conn.ParseURI(args[1]); err != nil {
				return err
			}
			store, err := opts.store()
			if err != nil {
				return err
			}
			if err := store.Save(profile.Profile{Name: args[0], URI: args[1]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved profile %s to %s\n", args[0], store.Path(args[0]))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			profiles, skipped, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				list := make(map[string]string, len(profiles))
				for _, p := range profiles {
					list[p.Name] = conn.Redact(p.URI)
				}
				return writeJSON(out, list)
			}
			rows := make([][]string, len(profiles))
			for i, p := range profiles {
				rows[i] = []string{p.Name, conn.Redact(p.URI)}
			}
			fmt.Fprint(out, render.Grid([]string{"Profile", "URI"}, rows))
			for _, name := range skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: profile %s could not be decoded\n", name)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			if err := store.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed profile %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func (o *RootOptions) store() (*profile.Store, error) {
	cfg, err := o.settings()
	if err != nil {
		return nil, err
	}
	return profile.NewStore(cfg.ProfileDir)
}
