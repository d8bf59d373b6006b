package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSecureHandlerMasksSensitiveKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "control password", key: "control_password", value: "opensesame"},
		{name: "stream isolation credentials", key: "isolation", value: "c-18fa93bc"},
		{name: "cookie header", key: "cookie", value: "session=abc123"},
		{name: "authorization header", key: "Authorization", value: "Bearer xyz"},
		{name: "keyword substring", key: "tor_control_password", value: "hunter2"},
		{name: "password", key: "password", value: "hunter2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))

			logger.Info("test", tt.key, tt.value)

			out := buf.String()
			if strings.Contains(out, tt.value) {
				t.Errorf("output leaked value %q:\n%s", tt.value, out)
			}
			if !strings.Contains(out, MaskValue) {
				t.Errorf("output missing mask:\n%s", out)
			}
		})
	}
}

func TestSecureHandlerMasksSensitiveValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
	}{
		{name: "bearer token", value: "Bearer abc.def.ghi"},
		{name: "control authenticate command", value: `AUTHENTICATE "opensesame"`},
		{name: "jwt", value: "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxIn0.sig"},
		{name: "onion secret key marker", value: "== ed25519v1-secret: type0 =="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))

			logger.Info("test", "detail", tt.value)

			if !strings.Contains(buf.String(), MaskValue) {
				t.Errorf("value %q was not masked:\n%s", tt.value, buf.String())
			}
		})
	}
}

func TestSecureHandlerKeepsHarmlessAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))

	// Onion hostnames and circuit IDs are operational data the gateway
	// needs in its logs.
	logger.Info("request",
		"host", "juhanurmihxlp77nkq76byazcldy2hlmovfu2epvl5ankdibsot4csyd.onion",
		"circuit", "c-18fa93bc",
		"backend", "duckduckgo",
	)

	out := buf.String()
	for _, want := range []string{"juhanur", "c-18fa93bc", "duckduckgo"} {
		if !strings.Contains(out, want) {
			t.Errorf("harmless attribute %q was masked:\n%s", want, out)
		}
	}
	if strings.Contains(out, MaskValue) {
		t.Errorf("unexpected masking:\n%s", out)
	}
}

func TestSecureHandlerSanitizesGroups(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))

	logger.Info("grouped",
		slog.Group("tor",
			slog.String("password", "opensesame"),
			slog.String("addr", "127.0.0.1:9051"),
		),
	)

	out := buf.String()
	if strings.Contains(out, "opensesame") {
		t.Errorf("group leaked value:\n%s", out)
	}
	if !strings.Contains(out, "127.0.0.1:9051") {
		t.Errorf("group lost harmless value:\n%s", out)
	}
}

func TestSecureHandlerWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewSecureHandler(slog.NewTextHandler(&buf, nil)))

	logger.With("token", "sekrit").Info("with attrs")

	if strings.Contains(buf.String(), "sekrit") {
		t.Errorf("With() leaked value:\n%s", buf.String())
	}
}

func TestNewSecureLoggerLevels(t *testing.T) {
	t.Parallel()

	t.Run("quiet mode drops info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewSecureLogger(&buf, false)

		logger.Info("should not appear")
		logger.Warn("should appear")

		out := buf.String()
		if strings.Contains(out, "should not appear") {
			t.Errorf("info logged in quiet mode:\n%s", out)
		}
		if !strings.Contains(out, "should appear") {
			t.Errorf("warning missing:\n%s", out)
		}
	})

	t.Run("verbose mode includes debug", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := NewSecureLogger(&buf, true)

		logger.Debug("debug detail")

		if !strings.Contains(buf.String(), "debug detail") {
			t.Errorf("debug missing in verbose mode:\n%s", buf.String())
		}
	})
}

func TestNewSecureJSONLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewSecureJSONLogger(&buf, true)

	logger.Info("json test", "password", "hunter2")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("output is not JSON:\n%s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("JSON output leaked value:\n%s", out)
	}
}
