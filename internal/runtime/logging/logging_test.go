package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newCaptureLogger() (ServiceLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogServiceLogger(slog.New(handler)), &buf
}

func TestSlogAdapterEmitsFields(t *testing.T) {
	log, buf := newCaptureLogger()

	log.Info("handling request", LogFields{"routing_key": "orders.create"})

	out := buf.String()
	if !strings.Contains(out, "handling request") {
		t.Fatalf("message missing from output: %s", out)
	}
	if !strings.Contains(out, "orders.create") {
		t.Fatalf("field missing from output: %s", out)
	}
}

func TestSlogAdapterAppendsError(t *testing.T) {
	log, buf := newCaptureLogger()

	log.Error("publish failed", errors.New("channel gone"), nil)

	if !strings.Contains(buf.String(), "channel gone") {
		t.Fatalf("error missing from output: %s", buf.String())
	}
}

func TestWithScopesFields(t *testing.T) {
	log, buf := newCaptureLogger()

	scoped := log.With(LogFields{"req_id": "abc-123"})
	scoped.Debug("scoped entry", nil)
	log.Debug("unscoped entry", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "abc-123") {
		t.Fatalf("scoped line missing field: %s", lines[0])
	}
	if strings.Contains(lines[1], "abc-123") {
		t.Fatalf("unscoped line inherited field: %s", lines[1])
	}
}

func TestWithEmptyFieldsReturnsSameLogger(t *testing.T) {
	log, _ := newCaptureLogger()
	if log.With(nil) != log {
		t.Fatal("With(nil) should be a no-op")
	}
}

func TestNewSlogServiceLoggerRejectsNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on nil logger")
		}
	}()
	NewSlogServiceLogger(nil)
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	log := NewNopLogger()
	log.With(LogFields{"k": "v"}).Debug("discarded", nil)
	log.Info("discarded", nil)
	log.Warn("discarded", nil)
	log.Error("discarded", errors.New("x"), nil)
}
