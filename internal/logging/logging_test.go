package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestEnsureMessageIDIsStable(t *testing.T) {
	ctx, id := EnsureMessageID(context.Background())
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("message id %q is not a uuid: %v", id, err)
	}
	ctx2, id2 := EnsureMessageID(ctx)
	if id2 != id || ctx2 != ctx {
		t.Fatalf("EnsureMessageID replaced an existing id: %q -> %q", id, id2)
	}
	if got := MessageIDFromContext(ctx); got != id {
		t.Fatalf("MessageIDFromContext() = %q, want %q", got, id)
	}
}

func TestMessageAndRequestIDsAreIndependent(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx, msgID := EnsureMessageID(ctx)

	if RequestIDFromContext(ctx) != "req-1" {
		t.Fatalf("request id lost")
	}
	if msgID == "req-1" || MessageIDFromContext(ctx) != msgID {
		t.Fatalf("message id = %q", msgID)
	}
}

func TestWithMessageLoggerAnnotatesRecords(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx, log := WithMessageLogger(context.Background(), base)
	log.Warn(ctx, "message dropped", Int("origin", 4), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log record %q: %v", buf.String(), err)
	}
	if rec["message_id"] != MessageIDFromContext(ctx) {
		t.Fatalf("message_id = %v, want %q", rec["message_id"], MessageIDFromContext(ctx))
	}
	if rec["level"] != "WARN" || rec["error"] != "boom" || rec["origin"] != float64(4) {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Error(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestLoggerFromContextFallback(t *testing.T) {
	if _, ok := LoggerFromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("expected noop fallback")
	}
	stored := New(Config{Output: io.Discard})
	ctx := ContextWithLogger(context.Background(), stored)
	if LoggerFromContext(ctx, nil) != stored {
		t.Fatalf("stored logger not returned")
	}
}
