package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/microblog/internal/lock"
	"github.com/Aman-CERP/microblog/internal/output"
	"github.com/Aman-CERP/microblog/internal/search"
)

func newReindexCmd() *cobra.Command {
	var (
		format string
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "reindex [collection]",
		Short: "Rebuild search indexes from the database",
		Long: `Rebuild search indexes from the database.

Without an argument every searchable collection is rebuilt. Only one
reindex may run against a data directory at a time; by default a second
one fails at once, with --wait it queues behind the first.`,
		Example: `  microblog reindex
  microblog reindex post --format json
  microblog reindex --wait`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runReindex(cmd, name, format, wait)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for a running reindex instead of failing")

	return cmd
}

func runReindex(cmd *cobra.Command, name, format string, wait bool) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format: %s (use: text, json)", format)
	}
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

	l := lock.New(dataDir(a.Config), "reindex")
	acquire := l.TryLock
	if wait {
		acquire = func() error { return l.Lock(cmd.Context()) }
	}
	if err := acquire(); err != nil {
		return err
	}
	defer func() { _ = l.Unlock() }()

	if err := a.EnsureIndexes(cmd.Context()); err != nil {
		return err
	}
	stats, err := a.Reindex(cmd.Context(), name)
	if err != nil {
		return err
	}

	if format == "json" {
		return out.JSON(stats)
	}
	printReindexStats(out, stats)
	return nil
}

func printReindexStats(out *output.Writer, stats []search.ReindexStats) {
	for _, s := range stats {
		if s.Failed > 0 {
			out.Warningf("%s: %d indexed, %d failed in %s", s.Index, s.Indexed, s.Failed, s.Duration.Round(time.Millisecond))
			continue
		}
		out.Successf("%s: %d indexed in %s", s.Index, s.Indexed, s.Duration.Round(time.Millisecond))
	}
}
