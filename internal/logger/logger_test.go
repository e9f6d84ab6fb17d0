package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func captureLogger(buf *bytes.Buffer) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(buf, nil))}
}

func TestWithContextCarriesCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithReportID(ctx, "rep-1")
	ctx = WithOperation(ctx, "stream")

	l.WithContext(ctx).Info("hello")

	out := buf.String()
	for _, want := range []string{
		`"request_id":"req-1"`,
		`"session_id":"sess-1"`,
		`"report_id":"rep-1"`,
		`"operation":"stream"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestWithContextSkipsAbsentKeys(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	l.WithContext(context.Background()).Info("hello")

	out := buf.String()
	if strings.Contains(out, "request_id") || strings.Contains(out, "session_id") {
		t.Errorf("unexpected correlation attrs on empty context: %s", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	captureLogger(&buf).WithComponent("store").Info("hello")
	if !strings.Contains(buf.String(), `"component":"store"`) {
		t.Errorf("component attr missing: %s", buf.String())
	}
}

func TestLogErrorIncludesContextAndError(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	ctx := WithRequestID(context.Background(), "req-9")
	l.LogError(ctx, errors.New("boom"), "storing report failed", "report_id", "r1")

	out := buf.String()
	for _, want := range []string{`"error":"boom"`, `"request_id":"req-9"`, `"report_id":"r1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if a == "" || a == b {
		t.Errorf("request ids should be unique and non-empty: %q %q", a, b)
	}
}
