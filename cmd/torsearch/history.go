package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/BigBang142/Tor-Search-MCP/internal/config"
	"github.com/BigBang142/Tor-Search-MCP/internal/history"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// NewHistoryCmd creates the history command, which inspects the local
// search history database. It never touches the network.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [search-id]",
		Short: "Show past searches and their stored results",
		Long: `Show past searches and their stored results.

Without arguments, lists the most recent searches. With a search ID,
prints the stored results of that search in the usual output formats.

Examples:
  # List the 20 most recent searches
  torsearch history

  # Show the stored results of search 17 as JSON
  torsearch history -j 17

  # Delete everything older than 30 days
  torsearch history --prune 720h`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}

	addOutputFlags(cmd)

	cmd.Flags().IntP("limit", "n", 20,
		"Maximum number of searches to list")
	cmd.Flags().Duration("prune", 0,
		"Delete searches older than this duration and exit")

	return cmd
}

// runHistory executes the history command.
func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	retention, err := cmd.Flags().GetDuration("prune")
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.DBDir, history.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open history database (run a search first): %w", err)
	}
	defer store.Close() //nolint:errcheck // Best effort cleanup

	ctx := cmd.Context()

	if retention > 0 {
		deleted, err := store.Prune(ctx, retention)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d search(es) older than %s\n", deleted, retention)
		return nil
	}

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid search ID %q", args[0])
		}
		return showSearch(cmd, cfg, store, id)
	}

	return listSearches(cmd, store, limit)
}

// listSearches prints a table of recent searches.
func listSearches(cmd *cobra.Command, store *history.Store, limit int) error {
	records, err := store.ListSearches(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list searches: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No searches recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tRESULTS\tSOURCES\tQUERY")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.ExecutedAt.Local().Format(time.DateTime),
			r.ResultCount,
			joinKinds(r.Sources),
			r.Query,
		)
	}
	return w.Flush()
}

// showSearch prints the stored results of one search, reusing the
// search output formats by rebuilding a response from the database.
func showSearch(cmd *cobra.Command, cfg *config.Config, store *history.Store, id int64) error {
	ctx := cmd.Context()

	record, err := store.GetSearch(ctx, id)
	if err != nil {
		if errors.Is(err, history.ErrNoSearch) {
			return fmt.Errorf("no search with ID %d", id)
		}
		return err
	}

	results, err := store.Results(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load results: %w", err)
	}

	resp := &model.Response{
		Query:   record.Query,
		Results: results,
		Sources: record.Sources,
		Elapsed: record.Elapsed,
	}

	writer, closer, err := newWriter(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close() //nolint:errcheck // Best effort cleanup
	}

	fmt.Fprintf(os.Stderr, "Search %d, executed %s\n",
		record.ID, record.ExecutedAt.Local().Format(time.DateTime))

	if _, err := writer.WriteResponse(resp); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

// joinKinds renders a backend list for the table.
func joinKinds(kinds []model.BackendKind) string {
	if len(kinds) == 0 {
		return "-"
	}
	out := ""
	for i, k := range kinds {
		if i > 0 {
			out += ","
		}
		out += string(k)
	}
	return out
}
