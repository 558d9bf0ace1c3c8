package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("%q expected %v, got %v", in, want, got)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Handler: NewHandler(&buf, FormatJSON, slog.LevelInfo), Component: ComponentStore})
	l.Info("hello", FieldCount, 2)

	out := buf.String()
	if !strings.Contains(out, `"component":"store"`) || !strings.Contains(out, `"count":2`) {
		t.Fatalf("unexpected output: %s", out)
	}

	buf.Reset()
	l.WithComponent(ComponentExport).Info("again")
	if !strings.Contains(buf.String(), `"component":"export"`) {
		t.Fatalf("component override missing: %s", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Component() != "unknown" {
		t.Fatalf("expected fallback logger, got %+v", l)
	}

	var buf bytes.Buffer
	base := New(Config{Handler: NewHandler(&buf, FormatText, slog.LevelInfo)})
	ctx := context.WithValue(context.Background(), LoggerContextKey, base)
	ctx = WithRequestID(ctx, "req_1")
	FromContext(ctx).Info("traced")
	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Fatalf("request id missing: %s", buf.String())
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Handler: NewHandler(&buf, FormatText, slog.LevelInfo)}))
	r := httptest.NewRequest("GET", "/bills", nil)

	sl.LogHTTPEnd(context.Background(), r, 503, 12, "127.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Fatalf("5xx should log at error: %s", buf.String())
	}

	buf.Reset()
	sl.LogError(context.Background(), "export failed", errors.New("boom"), ComponentExport, OpExport, nil)
	out := buf.String()
	if !strings.Contains(out, "error=boom") || !strings.Contains(out, "operation=export") {
		t.Fatalf("unexpected error log: %s", out)
	}
}
