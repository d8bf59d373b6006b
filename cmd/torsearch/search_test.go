package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BigBang142/Tor-Search-MCP/internal/config"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
)

// TestNewSearchCmd tests the search command creation.
func TestNewSearchCmd(t *testing.T) {
	t.Parallel()

	cmd := NewSearchCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "search [query...]" {
			t.Errorf("expected use 'search [query...]', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has long description", func(t *testing.T) {
		t.Parallel()
		if cmd.Long == "" {
			t.Error("expected non-empty long description")
		}
	})

	t.Run("requires at least one argument", func(t *testing.T) {
		t.Parallel()
		if cmd.Args == nil {
			t.Error("expected Args validator")
		}
	})

	t.Run("has external-tor flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("external-tor")
		if flag == nil {
			t.Fatal("expected external-tor flag")
		}
		if flag.Shorthand != "e" {
			t.Errorf("expected shorthand 'e', got %q", flag.Shorthand)
		}
	})

	t.Run("has tor-timeout flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("tor-timeout")
		if flag == nil {
			t.Fatal("expected tor-timeout flag")
		}
		if flag.Shorthand != "T" {
			t.Errorf("expected shorthand 'T', got %q", flag.Shorthand)
		}
	})

	t.Run("has timeout flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("timeout")
		if flag == nil {
			t.Fatal("expected timeout flag")
		}
		if flag.Shorthand != "t" {
			t.Errorf("expected shorthand 't', got %q", flag.Shorthand)
		}
	})

	t.Run("has max-results flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("max-results")
		if flag == nil {
			t.Fatal("expected max-results flag")
		}
		if flag.Shorthand != "n" {
			t.Errorf("expected shorthand 'n', got %q", flag.Shorthand)
		}
	})

	t.Run("has sources flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("sources")
		if flag == nil {
			t.Fatal("expected sources flag")
		}
		if flag.Shorthand != "s" {
			t.Errorf("expected shorthand 's', got %q", flag.Shorthand)
		}
	})

	t.Run("has config flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("config")
		if flag == nil {
			t.Fatal("expected config flag")
		}
		if flag.Shorthand != "c" {
			t.Errorf("expected shorthand 'c', got %q", flag.Shorthand)
		}
	})

	t.Run("has json flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("json")
		if flag == nil {
			t.Fatal("expected json flag")
		}
		if flag.Shorthand != "j" {
			t.Errorf("expected shorthand 'j', got %q", flag.Shorthand)
		}
	})

	t.Run("has markdown flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("markdown")
		if flag == nil {
			t.Fatal("expected markdown flag")
		}
		if flag.Shorthand != "m" {
			t.Errorf("expected shorthand 'm', got %q", flag.Shorthand)
		}
	})

	t.Run("has output flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("output")
		if flag == nil {
			t.Fatal("expected output flag")
		}
		if flag.Shorthand != "o" {
			t.Errorf("expected shorthand 'o', got %q", flag.Shorthand)
		}
	})

	t.Run("has no-history flag", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("no-history") == nil {
			t.Fatal("expected no-history flag")
		}
	})

	t.Run("does not have db-dir flag (uses XDG)", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("db-dir") != nil {
			t.Error("db-dir flag should not exist (always uses XDG data directory)")
		}
	})
}

// TestBuildSearchConfig tests configuration building from flags.
func TestBuildSearchConfig(t *testing.T) {
	t.Run("builds config with default values", func(t *testing.T) {
		cmd := NewSearchCmd()
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg == nil {
			t.Fatal("expected non-nil config")
		}
		if cfg.UseExternalTor {
			t.Error("expected UseExternalTor to be false")
		}
		if cfg.MaxResults != config.DefaultMaxResults {
			t.Errorf("expected MaxResults %d, got %d", config.DefaultMaxResults, cfg.MaxResults)
		}
		if cfg.GlobalTimeout != config.DefaultGlobalTimeout {
			t.Errorf("expected GlobalTimeout %v, got %v", config.DefaultGlobalTimeout, cfg.GlobalTimeout)
		}
		if !cfg.SaveHistory {
			t.Error("expected SaveHistory to be true by default")
		}
	})

	t.Run("builds config with external tor", func(t *testing.T) {
		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("external-tor", "127.0.0.1:9150")
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !cfg.UseExternalTor {
			t.Error("expected UseExternalTor to be true")
		}
		if cfg.TorProxyAddress != "127.0.0.1:9150" {
			t.Errorf("expected TorProxyAddress '127.0.0.1:9150', got %q", cfg.TorProxyAddress)
		}
	})

	t.Run("builds config with custom max results", func(t *testing.T) {
		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("max-results", "25")
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.MaxResults != 25 {
			t.Errorf("expected MaxResults 25, got %d", cfg.MaxResults)
		}
	})

	t.Run("builds config with custom timeout", func(t *testing.T) {
		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("timeout", "45s")
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.GlobalTimeout != 45*time.Second {
			t.Errorf("expected GlobalTimeout 45s, got %v", cfg.GlobalTimeout)
		}
	})

	t.Run("builds config with sources", func(t *testing.T) {
		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("sources", "duckduckgo,ahmia")
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cfg.Sources) != 2 {
			t.Fatalf("expected 2 sources, got %d", len(cfg.Sources))
		}
		kinds, err := cfg.SourceKinds()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if kinds[0] != model.KindDuckDuckGo || kinds[1] != model.KindAhmia {
			t.Errorf("unexpected kinds: %v", kinds)
		}
	})

	t.Run("no-history flag disables history", func(t *testing.T) {
		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("no-history", "true")
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.SaveHistory {
			t.Error("expected SaveHistory to be false")
		}
	})

	t.Run("builds config with JSON flag", func(t *testing.T) {
		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("json", "true")
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !cfg.JSONOutput {
			t.Error("expected JSONOutput to be true")
		}
	})

	t.Run("builds config with valid config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, config.DefaultConfigFile)

		content := []byte(`
backends:
  mysearx:
    kind: searx
    url: https://searx.example.org
order:
  - mysearx
`)
		if err := os.WriteFile(configPath, content, 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("config", configPath)
		cfg, err := buildSearchConfig(cmd, []string{"tor"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Backends == nil {
			t.Fatal("expected Backends to be loaded")
		}
		entry, ok := cfg.Backends.Get("mysearx")
		if !ok {
			t.Fatal("expected mysearx backend entry")
		}
		if entry.Kind != "searx" {
			t.Errorf("expected kind 'searx', got %q", entry.Kind)
		}
	})

	t.Run("fails on missing explicit config file", func(t *testing.T) {
		cmd := NewSearchCmd()
		_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "does-not-exist.yaml"))
		if _, err := buildSearchConfig(cmd, []string{"tor"}); err == nil {
			t.Error("expected error for missing explicit config file")
		}
	})
}
