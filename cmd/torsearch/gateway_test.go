package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BigBang142/Tor-Search-MCP/internal/config"
	"github.com/BigBang142/Tor-Search-MCP/internal/model"
	"github.com/BigBang142/Tor-Search-MCP/internal/report"
	"github.com/BigBang142/Tor-Search-MCP/internal/tor"
)

// TestBuildRegistry tests backend registry assembly from configuration.
func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	t.Run("default registry without config file", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()

		registry, err := buildRegistry(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		kinds := registry.Kinds()
		if len(kinds) != 2 {
			t.Fatalf("expected 2 default backends, got %d", len(kinds))
		}
		if kinds[0] != model.KindDuckDuckGo {
			t.Errorf("expected duckduckgo first, got %v", kinds[0])
		}
		if kinds[1] != model.KindAhmia {
			t.Errorf("expected ahmia second, got %v", kinds[1])
		}
	})

	t.Run("config file adds searx backend", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				"mysearx": {Kind: "searx", URL: "https://searx.example.org"},
			},
			Order: []string{"mysearx"},
		}

		registry, err := buildRegistry(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// mysearx first per the order, then ahmia and duckduckgo
		// alphabetically.
		kinds := registry.Kinds()
		if len(kinds) != 3 {
			t.Fatalf("expected 3 backends, got %d", len(kinds))
		}
		if kinds[0] != model.KindSearx {
			t.Errorf("expected searx first, got %v", kinds[0])
		}
	})

	t.Run("disabled backend is skipped", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				"duckduckgo": {Kind: "duckduckgo", Disabled: true},
			},
		}

		registry, err := buildRegistry(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, k := range registry.Kinds() {
			if k == model.KindDuckDuckGo {
				t.Error("expected duckduckgo to be disabled")
			}
		}
	})

	t.Run("searx without url fails", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				"mysearx": {Kind: "searx"},
			},
		}

		if _, err := buildRegistry(cfg); err == nil {
			t.Error("expected error for searx without url")
		}
	})

	t.Run("valid onion base url is accepted", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				"onionsearx": {
					Kind: "searx",
					URL:  "http://juhanurmihxlp77nkq76byazcldy2hlmovfu2epvl5ankdibsot4csyd.onion",
				},
			},
		}

		if _, err := buildRegistry(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("onion base url with bad checksum fails", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				// Valid base32 shape, corrupted last characters.
				"typo": {
					Kind: "searx",
					URL:  "http://juhanurmihxlp77nkq76byazcldy2hlmovfu2epvl5ankdibsoaaaaaa.onion",
				},
			},
		}

		if _, err := buildRegistry(cfg); !errors.Is(err, tor.ErrInvalidOnionAddress) {
			t.Errorf("got %v, expected ErrInvalidOnionAddress", err)
		}
	})

	t.Run("v2 onion base url fails with clear error", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				"retired": {Kind: "ahmia", URL: "http://abcdefghij234567.onion"},
			},
		}

		if _, err := buildRegistry(cfg); !errors.Is(err, tor.ErrV2OnionAddress) {
			t.Errorf("got %v, expected ErrV2OnionAddress", err)
		}
	})

	t.Run("unparseable base url fails", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				"broken": {Kind: "duckduckgo", URL: "not a url"},
			},
		}

		if _, err := buildRegistry(cfg); err == nil {
			t.Error("expected error for unparseable backend url")
		}
	})

	t.Run("unknown kind fails", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.Backends = &config.File{
			Backends: map[string]config.BackendEntry{
				"mystery": {Kind: "google"},
			},
		}

		if _, err := buildRegistry(cfg); err == nil {
			t.Error("expected error for unknown backend kind")
		}
	})
}

// TestNewWriter tests output writer selection.
func TestNewWriter(t *testing.T) {
	t.Parallel()

	t.Run("default is simple writer", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()

		writer, closer, err := newWriter(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if closer != nil {
			t.Error("expected nil closer for stdout")
		}
		if _, ok := writer.(*report.SimpleWriter); !ok {
			t.Errorf("expected *report.SimpleWriter, got %T", writer)
		}
	})

	t.Run("json flag selects json writer", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.JSONOutput = true

		writer, _, err := newWriter(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := writer.(*report.JSONWriter); !ok {
			t.Errorf("expected *report.JSONWriter, got %T", writer)
		}
	})

	t.Run("markdown flag selects markdown writer", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.MarkdownOutput = true

		writer, _, err := newWriter(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := writer.(*report.MarkdownWriter); !ok {
			t.Errorf("expected *report.MarkdownWriter, got %T", writer)
		}
	})

	t.Run("output file creates directories", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.OutputFile = filepath.Join(t.TempDir(), "nested", "dir", "out.txt")

		writer, closer, err := newWriter(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if closer == nil {
			t.Fatal("expected closer for file output")
		}
		defer closer.Close() //nolint:errcheck // Test cleanup

		resp := &model.Response{Query: "tor", Results: []model.Result{
			{Title: "a", URL: "http://a.onion", Source: model.KindAhmia},
		}}
		if _, err := writer.WriteResponse(resp); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := closer.Close(); err != nil {
			t.Fatalf("failed to close output: %v", err)
		}

		data, err := os.ReadFile(cfg.OutputFile)
		if err != nil {
			t.Fatalf("failed to read output file: %v", err)
		}
		if !strings.Contains(string(data), "http://a.onion") {
			t.Errorf("expected result URL in output, got %q", string(data))
		}
	})

	t.Run("output file has restrictive permissions", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.OutputFile = filepath.Join(t.TempDir(), "out.txt")

		_, closer, err := newWriter(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closer.Close() //nolint:errcheck // Test cleanup

		info, err := os.Stat(cfg.OutputFile)
		if err != nil {
			t.Fatalf("failed to stat output file: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("expected permissions 0600, got %o", perm)
		}
	})
}

// TestLoadBackendFile tests config file discovery behavior.
func TestLoadBackendFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit missing file is an error", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.ConfigFilePath = filepath.Join(t.TempDir(), "missing.yaml")

		if err := loadBackendFile(cfg); err == nil {
			t.Error("expected error for explicitly specified missing file")
		}
	})

	t.Run("explicit existing file is loaded", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), config.DefaultConfigFile)
		content := []byte("backends:\n  ahmia:\n    kind: ahmia\n")
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg := config.NewConfig()
		cfg.ConfigFilePath = path

		if err := loadBackendFile(cfg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Backends == nil || !cfg.Backends.Has("ahmia") {
			t.Error("expected ahmia entry to be loaded")
		}
	})
}
