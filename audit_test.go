package authkit

import (
	"context"
	"testing"
	"time"
)

func collectEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()

	select {
	case event := <-sink.Events():
		return event
	case <-time.After(time.Second):
		t.Fatal("no audit event received")
		return AuditEvent{}
	}
}

func TestAuditEventsFlowThroughEngine(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := WithClientIP(context.Background(), "203.0.113.7")
	provider := newMockProvider()
	sink := NewChannelSink(32)

	cfg := newTestConfig()
	cfg.Audit.Enabled = true
	b := New().WithConfig(cfg).WithRedis(rdb).WithAccountProvider(provider).WithAuditSink(sink)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	if _, err := engine.Login(ctx, "alice@example.com", "correct-horse-pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	event := collectEvent(t, sink)
	if event.EventType != "login.success" {
		t.Fatalf("event type = %q, want login.success", event.EventType)
	}
	if event.AccountID != "u1" || !event.Success {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.IP != "203.0.113.7" {
		t.Fatalf("event IP = %q", event.IP)
	}
}

func TestAuditFailureEventsCarryReason(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	provider := newMockProvider()
	sink := NewChannelSink(32)

	cfg := newTestConfig()
	cfg.Audit.Enabled = true
	engine, err := New().WithConfig(cfg).WithRedis(rdb).
		WithAccountProvider(provider).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	_, _ = engine.Login(context.Background(), "alice@example.com", "wrong-password-1")

	event := collectEvent(t, sink)
	if event.EventType != "login.failure" {
		t.Fatalf("event type = %q, want login.failure", event.EventType)
	}
	if event.Success || event.Error == "" {
		t.Fatalf("unexpected failure event: %+v", event)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	provider := newMockProvider()
	engine := newTestEngine(t, rdb, provider, newTestConfig(), nil)
	seedAccount(t, engine, provider, "u1", "alice@example.com", "", "correct-horse-pw")

	mustLogin(t, engine, "alice@example.com", "correct-horse-pw")

	if engine.AuditDropped() != 0 {
		t.Fatal("disabled audit reported drops")
	}
}
