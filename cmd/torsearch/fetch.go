package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BigBang142/Tor-Search-MCP/internal/config"
	"github.com/BigBang142/Tor-Search-MCP/internal/fetch"
	"github.com/BigBang142/Tor-Search-MCP/internal/history"
)

// NewFetchCmd creates the fetch command, which retrieves full pages
// over Tor and prints their readable text content.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [url|result-number...]",
		Short: "Fetch pages anonymously through Tor and extract their text",
		Long: `Fetch pages anonymously through Tor and extract their text.

Arguments are either full URLs or result numbers referring to a
previous search. Bare numbers resolve against the most recent search
in the history database; use --search-id to pick an older one.

The page body is fetched through a Tor circuit, scripts and styles are
stripped, and the readable text is printed. Onion addresses work the
same as clearnet URLs.

Examples:
  # Fetch results 1 and 3 of the latest search
  torsearch fetch 1 3

  # Fetch a specific URL
  torsearch fetch http://example.onion/page

  # Fetch result 2 of search 17 as JSON
  torsearch fetch --search-id 17 -j 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFetch,
	}

	addConnectionFlags(cmd)
	addOutputFlags(cmd)

	cmd.Flags().DurationP("timeout", "t", config.DefaultFetchTimeout,
		"Timeout for each page fetch")
	cmd.Flags().Int64("search-id", 0,
		"Resolve result numbers against this search instead of the latest")
	cmd.Flags().Int("max-length", 0,
		"Maximum extracted text length in characters (0 = default)")

	return cmd
}

// runFetch executes the fetch command.
func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	cfg.FetchTimeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	searchID, err := cmd.Flags().GetInt64("search-id")
	if err != nil {
		return err
	}
	maxLength, err := cmd.Flags().GetInt("max-length")
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Verbose)

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

	urls, err := resolveFetchArgs(ctx, cfg, args, searchID, logger)
	if err != nil {
		return err
	}

	stack, err := setupTor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.close(logger)

	opts := []fetch.Option{
		fetch.WithRequestTimeout(cfg.FetchTimeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithLogger(logger),
	}
	if maxLength > 0 {
		opts = append(opts, fetch.WithMaxTextLength(maxLength))
	}
	fetcher := fetch.NewFetcher(stack.circuits, stack.transport, opts...)

	pages, errs, err := fetcher.FetchAll(ctx, urls)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

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

	var failed int
	for i, page := range pages {
		if errs[i] != nil {
			failed++
			logger.Error("failed to fetch page", "url", urls[i], "error", errs[i])
			continue
		}
		if _, err := writer.WritePage(page); err != nil {
			return fmt.Errorf("failed to write page: %w", err)
		}
	}

	if cfg.OutputFile != "" {
		fmt.Fprintf(os.Stderr, "Pages written to %s\n", cfg.OutputFile)
	}

	if failed == len(urls) {
		return fmt.Errorf("all %d page(s) failed to fetch", failed)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d of %d page(s) failed to fetch\n", failed, len(urls))
	}

	return nil
}

// resolveFetchArgs turns the command arguments into URLs. Bare numbers
// are looked up in the search history; everything else must be a URL.
// Mixing the two forms in one invocation is allowed.
func resolveFetchArgs(ctx context.Context, cfg *config.Config, args []string, searchID int64, logger *slog.Logger) ([]string, error) {
	var positions []int
	urls := make([]string, len(args))

	for i, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			if n < 1 {
				return nil, fmt.Errorf("result number must be positive, got %d", n)
			}
			positions = append(positions, n)
			continue
		}

		u, err := url.Parse(arg)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("argument %q is neither a result number nor an http(s) URL", arg)
		}
		urls[i] = arg
	}

	if len(positions) == 0 {
		return urls, nil
	}

	if cfg.DBDir == "" {
		return nil, errors.New("result numbers require the history database, which is disabled")
	}

	store, err := history.Open(cfg.DBDir, history.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database (run a search first or pass full URLs): %w", err)
	}
	defer store.Close() //nolint:errcheck // Best effort cleanup

	if searchID == 0 {
		latest, err := store.LatestSearch(ctx)
		if err != nil {
			if errors.Is(err, history.ErrNoSearch) {
				return nil, errors.New("no search history found; run a search first or pass full URLs")
			}
			return nil, err
		}
		searchID = latest.ID
		logger.Debug("resolving result numbers against latest search",
			"searchID", searchID, "query", latest.Query)
	}

	results, err := store.ResultsAt(ctx, searchID, positions)
	if err != nil {
		if errors.Is(err, history.ErrIndexOutOfRange) {
			return nil, fmt.Errorf("result number out of range for search %d: %w", searchID, err)
		}
		return nil, err
	}

	// Fill resolved URLs back into their argument slots.
	next := 0
	for i := range urls {
		if urls[i] == "" {
			urls[i] = results[next].URL
			next++
		}
	}

	return urls, nil
}
