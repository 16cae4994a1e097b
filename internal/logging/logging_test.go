package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNew_JSONWithRunLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "debug", Format: "json", Output: &buf})

	ctx, log := WithRunLogger(context.Background(), base)
	log.Debug(ctx, "step", Float64("t", 0.5), Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	id := RunIDFromContext(ctx)
	if entry["run_id"] != id {
		t.Fatalf("run_id = %v, want %q", entry["run_id"], id)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run_id %q is not a UUID: %v", id, err)
	}
	if entry["error"] != "boom" || entry["t"] != 0.5 {
		t.Fatalf("fields = %v", entry)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output for warn level: %q", out)
	}
}

func TestEnsureRunID_KeepsExisting(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "abc")
	ctx, id := EnsureRunID(ctx)
	if id != "abc" || RunIDFromContext(ctx) != "abc" {
		t.Fatalf("EnsureRunID replaced existing id, got %q", id)
	}
}

func TestLoggerFromContext(t *testing.T) {
	fallback := Noop()
	if got := LoggerFromContext(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}

	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	ctx := ContextWithLogger(context.Background(), l)
	LoggerFromContext(ctx, fallback).Info(ctx, "from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Fatalf("context logger not used, output %q", buf.String())
	}
}
