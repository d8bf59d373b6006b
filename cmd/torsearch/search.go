package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BigBang142/Tor-Search-MCP/internal/config"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
	"github.com/BigBang142/Tor-Search-MCP/internal/search"
	"github.com/BigBang142/Tor-Search-MCP/internal/tor"
)

// NewSearchCmd creates the search command, the main entry point of the
// gateway: it queries the configured search backends over Tor, merges
// the results, and prints them.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search the web anonymously through Tor",
		Long: `Search the web anonymously through Tor.

The query is sent to every enabled search backend in parallel, each
over its own Tor circuit. Results are deduplicated, ranked, and merged
into a single list. Failed backends are retried on fresh circuits; a
partial result set is returned when some backends fail.

By default an embedded Tor daemon is started for the session. Use
--external-tor to connect to an already running Tor instance instead.

Examples:
  # Search with the embedded Tor daemon
  torsearch search privacy preserving search engines

  # Use an existing Tor daemon and limit results
  torsearch search -e 127.0.0.1:9050 -n 5 onion routing

  # Query only specific backends, output JSON
  torsearch search -s duckduckgo,ahmia -j hidden wiki`,
		Args: cobra.MinimumNArgs(1),
		RunE: runSearch,
	}

	addConnectionFlags(cmd)
	addOutputFlags(cmd)

	cmd.Flags().DurationP("timeout", "t", config.DefaultGlobalTimeout,
		"Overall deadline for the whole search")
	cmd.Flags().IntP("max-results", "n", config.DefaultMaxResults,
		fmt.Sprintf("Maximum number of results to return (1-%d)", config.MaxResultsLimit))
	cmd.Flags().StringSliceP("sources", "s", nil,
		"Comma-separated backends to query (default: all enabled)")
	cmd.Flags().StringP("config", "c", "",
		"Path to backend configuration file (default: .torsearch in cwd or home)")
	cmd.Flags().Bool("no-history", false,
		"Do not record this search in the local history database")

	return cmd
}

// runSearch executes the search command.
func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := buildSearchConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Verbose)

	// Graceful shutdown on Ctrl+C: cancel in-flight requests and let the
	// deferred daemon stop run.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			logger.Info("interrupt received, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	stack, err := setupTor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.close(logger)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	orchestrator := search.NewOrchestrator(registry, stack.circuits, stack.transport,
		search.WithGlobalTimeout(cfg.GlobalTimeout),
		search.WithRequestTimeout(cfg.RequestTimeout),
		search.WithMaxBodySize(cfg.MaxBodySize),
		search.WithSnippetLength(cfg.SnippetLength),
		search.WithLogger(logger),
	)

	query := model.Query{
		Text:       strings.Join(args, " "),
		MaxResults: cfg.MaxResults,
	}
	query.Sources, err = cfg.SourceKinds()
	if err != nil {
		return err
	}

	logger.Info("searching", "query", query.Text, "maxResults", query.MaxResults)

	resp, err := orchestrator.Search(ctx, query)
	if err != nil {
		if errors.Is(err, tor.ErrCircuitUnavailable) {
			return fmt.Errorf("search failed: %w (is Tor reachable?)", err)
		}
		return fmt.Errorf("search failed: %w", err)
	}

	saveHistory(ctx, cfg, resp, logger)

	writer, closer, err := newWriter(cfg)
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() {
			if cerr := closer.Close(); cerr != nil {
				logger.Error("failed to close output file", "error", cerr)
			}
		}()
	}

	if _, err := writer.WriteResponse(resp); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if cfg.OutputFile != "" {
		fmt.Fprintf(os.Stderr, "Results written to %s\n", cfg.OutputFile)
	}

	return nil
}

// buildSearchConfig extends the shared config with search-only flags.
func buildSearchConfig(cmd *cobra.Command, _ []string) (*config.Config, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}

	cfg.GlobalTimeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxResults, err = cmd.Flags().GetInt("max-results")
	if err != nil {
		return nil, err
	}

	cfg.Sources, err = cmd.Flags().GetStringSlice("sources")
	if err != nil {
		return nil, err
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	if noHistory {
		cfg.SaveHistory = false
	}

	return cfg, nil
}

// saveHistory records the response in the local history database.
// History failures are logged, never fatal: the user already has their
// results on screen.
func saveHistory(ctx context.Context, cfg *config.Config, resp *model.Response, logger *slog.Logger) {
	if !cfg.SaveHistory {
		return
	}

	store, err := openHistory(cfg)
	if err != nil {
		logger.Warn("failed to open history database", "error", err)
		return
	}
	if store == nil {
		return
	}
	defer store.Close() //nolint:errcheck // Best effort cleanup

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	id, err := store.SaveSearch(saveCtx, resp)
	if err != nil {
		logger.Warn("failed to save search history", "error", err)
		return
	}
	logger.Debug("search saved to history", "searchID", id)
}
