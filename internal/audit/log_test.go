package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"permaudit.io/internal/auth"
	"permaudit.io/internal/obs"
)

func TestLogEvent(t *testing.T) {
	orig := obs.Logger()
	core, logs := observer.New(zapcore.InfoLevel)
	obs.SetLogger(zap.New(core))
	defer obs.SetLogger(orig)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{Subject: "user-42", OrgID: "cloud-1"})

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected one entry, got %d", logs.Len())
	}
	fields := logs.All()[0].ContextMap()
	if fields["type"] != "audit" {
		t.Fatalf("unexpected type: %v", fields["type"])
	}
	if fields["event"] != "audit.test" {
		t.Fatalf("unexpected event: %v", fields["event"])
	}
	if fields["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", fields["request_id"])
	}
	if fields["user_id"] != "user-42" {
		t.Fatalf("unexpected user id: %v", fields["user_id"])
	}
	if fields["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", fields)
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event")
	}
}
