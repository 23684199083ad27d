package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/microblog/internal/output"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage search indexes",
	}
	cmd.AddCommand(newIndexInitCmd())
	return cmd
}

func newIndexInitCmd() *cobra.Command {
	var reset bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the index of every searchable collection",
		Long: `Create the index of every searchable collection if it does not exist.
Existing indexes and their documents are left untouched.

With --reset, existing indexes are dropped and recreated empty; run
'microblog reindex' afterwards to repopulate them.`,
		Example: `  microblog index init
  microblog index init --reset && microblog reindex`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if a.Engine == nil {
				out.Warning("Search is disabled (search.backend: none)")
				return nil
			}
			if reset {
				if err := a.ResetIndexes(cmd.Context()); err != nil {
					return err
				}
				out.Warning("Indexes were reset; run 'microblog reindex' to repopulate them")
			} else if err := a.EnsureIndexes(cmd.Context()); err != nil {
				return err
			}

			out.Successf("Indexes ready: %s", strings.Join(a.Registry.Names(), ", "))
			out.KeyValue("Backend", a.Config.Search.Backend)
			if a.Config.Search.Path != "" {
				out.KeyValue("Path", a.Config.Search.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reset, "reset", false, "Drop and recreate existing indexes")

	return cmd
}
