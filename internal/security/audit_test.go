package security_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/scaroll/pgclosets-store-sub011/internal/security"
)

type recordingSink struct {
	mu      sync.Mutex
	entries [][]byte
}

func (s *recordingSink) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.entries = append(s.entries, body)
		s.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestAuditEmitter_DeliversEntry(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	emitter := security.NewAuditEmitter(security.AuditOptions{
		Endpoint: server.URL,
		Level:    "warn",
	})
	emitter.Emit(security.EventRateLimitExceeded, security.Context{
		IP:        "10.0.0.9",
		UserAgent: "Mozilla/5.0",
		RequestID: "req-1",
	}, map[string]any{"path": "/search"})
	emitter.Close()

	if sink.count() != 1 {
		t.Fatalf("expected one delivered entry, got %d", sink.count())
	}
	var entry struct {
		Event   string         `json:"event"`
		Context map[string]any `json:"context"`
		Level   string         `json:"level"`
	}
	if err := json.Unmarshal(sink.entries[0], &entry); err != nil {
		t.Fatalf("entry is not JSON: %v", err)
	}
	if entry.Event != security.EventRateLimitExceeded || entry.Level != "warn" {
		t.Fatalf("unexpected entry: %#v", entry)
	}
	if entry.Context["ip"] != "10.0.0.9" || entry.Context["path"] != "/search" {
		t.Fatalf("context fields missing: %#v", entry.Context)
	}
}

func TestAuditEmitter_SinkFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	emitter := security.NewAuditEmitter(security.AuditOptions{
		Endpoint: "http://127.0.0.1:1/audit",
	})
	// Must not panic or block the caller.
	emitter.Emit(security.EventCSRFInvalid, security.Context{IP: "10.0.0.10"}, nil)
	emitter.Close()
}

func TestAuditEmitter_EmissionCap(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	server := httptest.NewServer(sink.handler())
	defer server.Close()

	emitter := security.NewAuditEmitter(security.AuditOptions{
		Endpoint:      server.URL,
		EmitPerSecond: 1,
		EmitBurst:     2,
	})
	for i := 0; i < 20; i++ {
		emitter.Emit(security.EventSuspiciousActivity, security.Context{IP: "10.0.0.11"}, nil)
	}
	emitter.Close()

	if got := sink.count(); got > 3 {
		t.Fatalf("emission cap must bound sink calls, got %d", got)
	}
}
