package security_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scaroll/pgclosets-store-sub011/internal/security"
)

func newTestPipeline(clock *fakeClock, opts security.PipelineOptions) *security.Pipeline {
	if opts.Now == nil && clock != nil {
		opts.Now = clock.Now
	}
	return security.NewPipeline(opts)
}

func getFrom(ip, path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("X-Forwarded-For", ip)
	r.Header.Set("User-Agent", "Mozilla/5.0")
	return r
}

func TestPipeline_PassThrough(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{})
	if rejection := pipeline.Process(getFrom("203.0.113.1", "/products")); rejection != nil {
		t.Fatalf("clean request must continue, got %#v", rejection)
	}
}

func TestPipeline_DDoSStageRejectsWith429(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{
		RateGuard: security.NewRateGuard(security.RateGuardOptions{
			BurstLimit: 3,
			Requests:   1000,
			Now:        clock.Now,
		}),
	})

	var rejection *security.Rejection
	for i := 0; i < 5; i++ {
		rejection = pipeline.Process(getFrom("203.0.113.2", "/products"))
	}
	if rejection == nil {
		t.Fatalf("burst must trip the DDoS stage")
	}
	if rejection.Status != http.StatusTooManyRequests || rejection.Code != security.CodeDDoSProtection {
		t.Fatalf("unexpected rejection: %#v", rejection)
	}
}

func TestPipeline_IPBlockStageRejectsWith403(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	blocks := security.NewIPBlockGuard(clock.Now)
	blocks.Block("203.0.113.3", time.Hour)
	pipeline := newTestPipeline(clock, security.PipelineOptions{IPBlocks: blocks})

	rejection := pipeline.Process(getFrom("203.0.113.3", "/products"))
	if rejection == nil || rejection.Status != http.StatusForbidden || rejection.Code != security.CodeIPBlocked {
		t.Fatalf("blocked IP must get 403 IP_BLOCKED, got %#v", rejection)
	}

	// Property 4: the block reads as expired immediately after its window.
	clock.Advance(time.Hour + time.Millisecond)
	if rejection := pipeline.Process(getFrom("203.0.113.3", "/products")); rejection != nil {
		t.Fatalf("expired block must not reject, got %#v", rejection)
	}
}

func TestPipeline_RateLimitStage(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{
		RateGuard: security.NewRateGuard(security.RateGuardOptions{
			Requests:      2,
			Window:        time.Minute,
			BlockDuration: 15 * time.Minute,
			BurstLimit:    1000,
			Now:           clock.Now,
		}),
	})

	pipeline.Process(getFrom("203.0.113.4", "/products"))
	pipeline.Process(getFrom("203.0.113.4", "/products"))
	rejection := pipeline.Process(getFrom("203.0.113.4", "/products"))
	if rejection == nil || rejection.Code != security.CodeRateLimit || rejection.Status != http.StatusTooManyRequests {
		t.Fatalf("expected RATE_LIMIT rejection, got %#v", rejection)
	}
}

func TestPipeline_BodyValidationStage(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{})

	r := httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader(`{"name":"x'; DROP TABLE users; --"}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Forwarded-For", "203.0.113.5")

	rejection := pipeline.Process(r)
	if rejection == nil || rejection.Code != security.CodeInputValidation || rejection.Status != http.StatusBadRequest {
		t.Fatalf("expected INPUT_VALIDATION rejection, got %#v", rejection)
	}
}

func TestPipeline_BodyRestoredAfterValidation(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{})

	payload := `{"name":"Jane"}`
	r := httptest.NewRequest(http.MethodPost, "/api/quote", strings.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")

	if rejection := pipeline.Process(r); rejection != nil {
		t.Fatalf("clean body must pass, got %#v", rejection)
	}
	restored, err := io.ReadAll(r.Body)
	if err != nil || string(restored) != payload {
		t.Fatalf("body must be readable downstream, got %q err %v", restored, err)
	}
}

func TestPipeline_CSRFStage(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	csrf := security.NewCSRFGuard(security.CSRFGuardOptions{Now: clock.Now})
	pipeline := newTestPipeline(clock, security.PipelineOptions{CSRF: csrf})

	// No token outside the safe prefixes: rejected.
	r := httptest.NewRequest(http.MethodPost, "/checkout", nil)
	rejection := pipeline.Process(r)
	if rejection == nil || rejection.Code != security.CodeCSRFProtection || rejection.Status != http.StatusForbidden {
		t.Fatalf("expected CSRF_PROTECTION rejection, got %#v", rejection)
	}

	// Property 6: safe prefix passes with no token at all.
	r = httptest.NewRequest(http.MethodPost, "/api/cart", strings.NewReader(`{"sku":"BD-36"}`))
	r.Header.Set("Content-Type", "application/json")
	if rejection := pipeline.Process(r); rejection != nil {
		t.Fatalf("safe prefix must skip CSRF, got %#v", rejection)
	}

	// Valid token passes.
	token, _ := csrf.Issue("session-9")
	r = httptest.NewRequest(http.MethodPost, "/checkout", nil)
	r.Header.Set("X-CSRF-Token", token)
	r.AddCookie(&http.Cookie{Name: "session-token", Value: "session-9"})
	if rejection := pipeline.Process(r); rejection != nil {
		t.Fatalf("valid token must pass, got %#v", rejection)
	}
}

func TestPipeline_SuspiciousActivityBlocksFutureNotCurrent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	blocks := security.NewIPBlockGuard(clock.Now)
	tracker := security.NewSuspiciousActivityTracker(blocks, security.TrackerOptions{
		Threshold: 3,
		Now:       clock.Now,
	})
	pipeline := newTestPipeline(clock, security.PipelineOptions{IPBlocks: blocks, Tracker: tracker})

	for i := 0; i < 3; i++ {
		if rejection := pipeline.Process(getFrom("203.0.113.6", "/wp-admin")); rejection != nil {
			t.Fatalf("probe %d must not be rejected by the tracker itself: %#v", i+1, rejection)
		}
	}
	// The block takes effect on the next request.
	rejection := pipeline.Process(getFrom("203.0.113.6", "/products"))
	if rejection == nil || rejection.Code != security.CodeIPBlocked {
		t.Fatalf("accumulated probes must block the IP, got %#v", rejection)
	}
}

func TestPipeline_FailOpenOnInternalFault(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{})

	r := httptest.NewRequest(http.MethodPost, "/checkout", panicReader{})
	r.Header.Set("Content-Type", "application/json")
	rejection := pipeline.Process(r)
	if rejection != nil {
		t.Fatalf("internal fault must fail open, got %#v", rejection)
	}
}

// panicReader simulates a runtime fault inside the guard chain.
type panicReader struct{}

func (panicReader) Read([]byte) (int, error) { panic("boom") }

func TestPipeline_MiddlewareDecoratesEveryResponse(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	blocks := security.NewIPBlockGuard(clock.Now)
	pipeline := newTestPipeline(clock, security.PipelineOptions{
		IPBlocks: blocks,
		Headers:  security.HeaderOptions{HSTS: true, Production: true},
	})
	handler := pipeline.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Pass-through response.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, getFrom("203.0.113.7", "/products"))
	assertSecurityHeaders(t, rec.Header())
	if rec.Header().Get("X-Response-Time") == "" {
		t.Fatalf("pass-through response must carry X-Response-Time")
	}
	if got := rec.Header().Get("Strict-Transport-Security"); !strings.Contains(got, "max-age=") {
		t.Fatalf("production response must carry HSTS, got %q", got)
	}

	// Rejected response carries the same decoration and the JSON body.
	blocks.Block("203.0.113.8", time.Hour)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, getFrom("203.0.113.8", "/products"))
	assertSecurityHeaders(t, rec.Header())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	var body struct {
		Error     string `json:"error"`
		Code      string `json:"code"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("rejection body is not JSON: %v", err)
	}
	if body.Code != "IP_BLOCKED" || body.Error == "" || body.Timestamp == 0 {
		t.Fatalf("unexpected rejection body: %#v", body)
	}
}

func TestPipeline_RateLimitResponseHeaders(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{
		RateGuard: security.NewRateGuard(security.RateGuardOptions{
			Requests:      1,
			Window:        time.Minute,
			BlockDuration: 15 * time.Minute,
			Now:           clock.Now,
		}),
	})
	handler := pipeline.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, getFrom("203.0.113.9", "/products"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, getFrom("203.0.113.9", "/products"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("429 must carry Retry-After")
	}
	if rec.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected X-RateLimit-Limit: %q", rec.Header().Get("X-RateLimit-Limit"))
	}
}

func TestPipeline_OriginHeadersCannotDefeatDecoration(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{})
	handler := pipeline.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Powered-By", "Express")
		w.Header().Set("Server", "nginx/1.25")
		w.Header().Set("X-Frame-Options", "ALLOWALL")
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, getFrom("203.0.113.13", "/products"))

	if got := rec.Header().Get("X-Powered-By"); got != "" {
		t.Fatalf("X-Powered-By must be stripped, got %q", got)
	}
	if got := rec.Header().Get("Server"); got != "" {
		t.Fatalf("Server must be stripped, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != security.DefaultFrameOptions {
		t.Fatalf("origin must not override X-Frame-Options, got %q", got)
	}
}

func TestPipeline_HeaderDecorationIsIdempotent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	pipeline := newTestPipeline(clock, security.PipelineOptions{})
	inner := pipeline.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	// Nested application simulates a retry path decorating twice.
	outer := pipeline.Middleware(inner)

	rec := httptest.NewRecorder()
	outer.ServeHTTP(rec, getFrom("203.0.113.10", "/products"))
	for _, name := range []string{
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Content-Security-Policy",
		"X-Request-ID",
	} {
		if got := len(rec.Header().Values(name)); got != 1 {
			t.Fatalf("header %s must appear exactly once, got %d", name, got)
		}
	}
}

func TestPipeline_SweepReclaimsAllStores(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	blocks := security.NewIPBlockGuard(clock.Now)
	csrf := security.NewCSRFGuard(security.CSRFGuardOptions{TokenExpiry: time.Minute, Now: clock.Now})
	pipeline := newTestPipeline(clock, security.PipelineOptions{
		IPBlocks:  blocks,
		CSRF:      csrf,
		RateGuard: security.NewRateGuard(security.RateGuardOptions{Now: clock.Now}),
	})

	pipeline.Process(getFrom("203.0.113.11", "/products"))
	blocks.Block("203.0.113.12", time.Minute)
	if _, err := csrf.Issue("session-sweep"); err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if removed := pipeline.Sweep(clock.Now()); removed < 3 {
		t.Fatalf("expected at least 3 reclaimed entries, got %d", removed)
	}
}

func assertSecurityHeaders(t *testing.T, h http.Header) {
	t.Helper()
	expect := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         security.DefaultFrameOptions,
		"X-XSS-Protection":        "1; mode=block",
		"Referrer-Policy":         security.DefaultReferrerPolicy,
		"Permissions-Policy":      security.DefaultPermissionsPolicy,
		"Content-Security-Policy": security.DefaultCSP,
	}
	for name, want := range expect {
		if got := h.Get(name); got != want {
			t.Fatalf("header %s: want %q, got %q", name, want, got)
		}
	}
	if h.Get("X-Request-ID") == "" {
		t.Fatalf("response must carry X-Request-ID")
	}
	if h.Get("X-Powered-By") != "" || h.Get("Server") != "" {
		t.Fatalf("identifying headers must be stripped")
	}
}
