package fetch

import (
	"strings"
	"testing"
)

func TestExtractText(t *testing.T) {
	t.Parallel()

	t.Run("extracts title and body text", func(t *testing.T) {
		t.Parallel()

		page := `<html><head><title>  The Hidden Wiki  </title></head><body>
			<h1>Welcome</h1>
			<p>A directory of onion services.</p>
		</body></html>`

		title, text, err := ExtractText([]byte(page))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if title != "The Hidden Wiki" {
			t.Errorf("title = %q, want %q", title, "The Hidden Wiki")
		}
		want := "Welcome\nA directory of onion services."
		if text != want {
			t.Errorf("text = %q, want %q", text, want)
		}
	})

	t.Run("title is found without head content leaking into text", func(t *testing.T) {
		t.Parallel()

		page := `<html><head>
			<title>Onion Directory</title>
			<style>body { margin: 0 }</style>
			<meta name="description" content="hidden services">
		</head><body><p>Listing.</p></body></html>`

		title, text, err := ExtractText([]byte(page))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if title != "Onion Directory" {
			t.Errorf("title = %q, want %q", title, "Onion Directory")
		}
		if text != "Listing." {
			t.Errorf("text = %q, want %q", text, "Listing.")
		}
	})

	t.Run("page without title yields empty title", func(t *testing.T) {
		t.Parallel()

		title, text, err := ExtractText([]byte(`<html><body><p>No title here.</p></body></html>`))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if title != "" {
			t.Errorf("title = %q, want empty", title)
		}
		if text != "No title here." {
			t.Errorf("text = %q, want %q", text, "No title here.")
		}
	})

	t.Run("strips scripts and styles", func(t *testing.T) {
		t.Parallel()

		page := `<html><body>
			<script>alert("tracking")</script>
			<style>body { color: red }</style>
			<noscript>enable javascript</noscript>
			<p>Visible text.</p>
		</body></html>`

		_, text, err := ExtractText([]byte(page))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if text != "Visible text." {
			t.Errorf("text = %q, want %q", text, "Visible text.")
		}
		for _, leaked := range []string{"alert", "color", "javascript"} {
			if strings.Contains(text, leaked) {
				t.Errorf("text contains %q, should be stripped", leaked)
			}
		}
	})

	t.Run("keeps inline elements on one line", func(t *testing.T) {
		t.Parallel()

		page := `<p>Read <a href="/more">the full page</a> for <em>details</em>.</p>`

		_, text, err := ExtractText([]byte(page))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if text != "Read the full page for details ." {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("separates block elements with newlines", func(t *testing.T) {
		t.Parallel()

		page := `<ul><li>first</li><li>second</li></ul><div>third</div>`

		_, text, err := ExtractText([]byte(page))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		want := "first\nsecond\nthird"
		if text != want {
			t.Errorf("text = %q, want %q", text, want)
		}
	})

	t.Run("collapses whitespace runs", func(t *testing.T) {
		t.Parallel()

		page := "<p>too \n\t   many    spaces</p>"

		_, text, err := ExtractText([]byte(page))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if text != "too many spaces" {
			t.Errorf("text = %q, want %q", text, "too many spaces")
		}
	})

	t.Run("tolerates malformed markup", func(t *testing.T) {
		t.Parallel()

		page := `<html><body><p>unclosed paragraph<div>and a stray div`

		_, text, err := ExtractText([]byte(page))
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if !strings.Contains(text, "unclosed paragraph") || !strings.Contains(text, "stray div") {
			t.Errorf("text = %q, want both fragments present", text)
		}
	})

	t.Run("empty input yields empty text", func(t *testing.T) {
		t.Parallel()

		title, text, err := ExtractText(nil)
		if err != nil {
			t.Fatalf("ExtractText() error = %v", err)
		}
		if title != "" || text != "" {
			t.Errorf("got title %q text %q, want empty", title, text)
		}
	})
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	t.Run("short text passes through", func(t *testing.T) {
		t.Parallel()

		got, truncated := TruncateText("short", 100)
		if got != "short" || truncated {
			t.Errorf("TruncateText() = (%q, %v), want (short, false)", got, truncated)
		}
	})

	t.Run("long text is cut at the rune limit", func(t *testing.T) {
		t.Parallel()

		got, truncated := TruncateText(strings.Repeat("x", 50), 10)
		if got != strings.Repeat("x", 10) || !truncated {
			t.Errorf("TruncateText() = (%q, %v), want 10 runes and true", got, truncated)
		}
	})

	t.Run("multibyte runes are not split", func(t *testing.T) {
		t.Parallel()

		got, truncated := TruncateText("日本語のテキスト", 3)
		if got != "日本語" || !truncated {
			t.Errorf("TruncateText() = (%q, %v), want (日本語, true)", got, truncated)
		}
	})

	t.Run("zero limit disables truncation", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("x", 50)
		got, truncated := TruncateText(long, 0)
		if got != long || truncated {
			t.Errorf("TruncateText() = (%q, %v), want passthrough", got, truncated)
		}
	})
}
