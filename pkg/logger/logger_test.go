package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithOrderID(ctx, "ord_1")
	ctx = log.WithAccountID(ctx, "acct_1")

	log.Error(ctx, "settlement failed", errors.New("boom"))

	for _, field := range []string{"\"order_id\":\"ord_1\"", "\"payout_account_id\":\"acct_1\"", "\"stack\""} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})
	log.Warn(context.Background(), "quiet")
	if bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("stack should be omitted when warn stack disabled")
	}

	buf.Reset()
	log = New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "loud")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn, got %v", lvl)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	ctx := log.WithPayoutID(context.Background(), "po_1")
	if ctx == nil {
		t.Fatalf("expected context to be returned")
	}
	log.Info(ctx, "dropped")
	log.Warn(ctx, "dropped")
	log.Error(ctx, "dropped", errors.New("boom"))
}

func TestLoggerStampsEnvironmentAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "worker", Environment: "prod", Format: FormatJSON, Output: buf})

	ctx := log.WithFields(context.Background(), map[string]any{"payout_id": "po_9", "attempt": 2})
	log.Info(ctx, "payout submitted")

	for _, field := range []string{`"env":"prod"`, `"service":"worker"`, `"payout_id":"po_9"`, `"attempt":2`} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerScopedFieldsDoNotLeak(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := context.Background()
	_ = log.WithSellerID(parent, "seller_1")
	log.Info(parent, "unscoped")
	if bytes.Contains(buf.Bytes(), []byte("seller_1")) {
		t.Fatalf("parent context must not carry child fields: %s", buf.String())
	}
}
