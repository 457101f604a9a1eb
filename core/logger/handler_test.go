package logger

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"
)

func newTestLogger(format logFormat) (*slog.Logger, *asyncWriter, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newLineHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	return slog.New(handler), aw, buf
}

func drain(t *testing.T, aw *asyncWriter, buf *bytes.Buffer) string {
	t.Helper()
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestLineHandlerKVOrder(t *testing.T) {
	log, aw, buf := newTestLogger(formatKV)
	ctx := WithRID(context.Background(), "1:2:3")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	log.With("component", "form").LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "field.accepted"),
		slog.String("status", "ok"),
		slog.String("flow", "beneficiary_create"),
		slog.String("field", "email"),
	)

	line := drain(t, aw, buf)
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=form", "event=field.accepted", "status=ok", "rid=1:2:3"}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %q, expected prefix %q (line: %s)", i, tokens[i], prefix, line)
		}
	}
	if !strings.Contains(line, "flow=beneficiary_create") || !strings.Contains(line, "field=email") {
		t.Fatalf("flow fields missing: %s", line)
	}
}

func TestLineHandlerJSONOrder(t *testing.T) {
	log, aw, buf := newTestLogger(formatJSON)
	ctx := WithRID(context.Background(), "11:22:33")

	log.With("component", "payments").LogAttrs(ctx, slog.LevelError, "",
		slog.String("event", "submit.fail"),
		slog.String("status", "fail"),
		slog.String("err", "boom"),
		slog.String("err_code", "API_ERROR"),
	)

	line := drain(t, aw, buf)
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	prefixes := []string{`{"ts":`, `"level":"ERROR"`, `"component":"payments"`, `"event":"submit.fail"`, `"status":"fail"`, `"rid":"11:22:33"`, `"err":"boom"`}
	pos := -1
	for _, pref := range prefixes {
		idx := strings.Index(line, pref)
		if idx == -1 || idx < pos {
			t.Fatalf("prefix %s not found in order within %s", pref, line)
		}
		pos = idx
	}
}

func TestLineHandlerDurationNormalization(t *testing.T) {
	log, aw, buf := newTestLogger(formatKV)

	log.LogAttrs(context.Background(), slog.LevelInfo, "",
		slog.String("event", "timing"),
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("submit_duration", 2*time.Second),
	)

	line := drain(t, aw, buf)
	if !strings.Contains(line, "duration_ms=2") {
		t.Fatalf("expected rounded duration_ms, got %s", line)
	}
	if !strings.Contains(line, "submit_duration_ms=2000") {
		t.Fatalf("expected submit_duration_ms, got %s", line)
	}
}

func TestLineHandlerContextFlow(t *testing.T) {
	log, aw, buf := newTestLogger(formatKV)
	ctx := WithFlow(context.Background(), "deposit_initiate")
	ctx = WithHandler(ctx, "flow.text")

	log.LogAttrs(ctx, slog.LevelInfo, "",
		slog.String("event", "prompt.sent"),
	)

	line := drain(t, aw, buf)
	if !strings.Contains(line, "flow=deposit_initiate") {
		t.Fatalf("expected flow from context, got %s", line)
	}
	if !strings.Contains(line, "handler=flow.text") {
		t.Fatalf("expected handler from context, got %s", line)
	}
}

func TestSanitizeLimit(t *testing.T) {
	in := "abc\x00def\nghi"
	got := SanitizeLimit(in, 5)
	if got != "abcde" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if SanitizeLimit("short", 10) != "short" {
		t.Fatal("expected untouched short string")
	}
}
