package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/microblog/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	page    int
	perPage int
	format  string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search posts",
		Long: `Search posts by full-text relevance.

Results come from the search index and are loaded from the database in
ranked order. Posts deleted since they were indexed are skipped.

Examples:
  microblog search gophers
  microblog search "error handling" --page 2 --per-page 10
  microblog search channels --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Page number, starting at 1")
	cmd.Flags().IntVarP(&opts.perPage, "per-page", "n", 0, "Results per page (default: search.per_page from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format: %s (use: text, json)", opts.format)
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

	slog.Debug("search_started", slog.String("query", query), slog.Int("page", opts.page))
	result, err := a.SearchPosts(ctx, query, opts.page, opts.perPage)
	if err != nil {
		return err
	}
	slog.Debug("search_complete", slog.Int("results", len(result.Items)), slog.Int("total", result.Total))

	if opts.format == "json" {
		return out.JSON(result)
	}

	if len(result.Items) == 0 {
		out.Statusf("∅", "No posts match %q", query)
		return nil
	}
	offset := (result.Page - 1) * result.PerPage
	for i, p := range result.Items {
		out.Hit(offset+i+1, p.ID, p.Timestamp, p.Body)
	}
	out.Newline()
	pages := (result.Total + result.PerPage - 1) / result.PerPage
	out.Statusf("", "Page %d of %d (%d matches)", result.Page, pages, result.Total)
	if result.NextPage != nil {
		out.Statusf("", "Next: microblog search %q --page %d", query, *result.NextPage)
	}
	return nil
}
