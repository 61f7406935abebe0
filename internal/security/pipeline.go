package security

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultMaxBodyBytes = 1 << 20

// PipelineOptions configures the guard chain.
type PipelineOptions struct {
	RateGuard *RateGuard
	IPBlocks  *IPBlockGuard
	Validator *PatternValidator
	CSRF      *CSRFGuard
	Tracker   *SuspiciousActivityTracker
	Audit     *AuditEmitter
	Metrics   *Metrics
	Logger    Logger
	Headers   HeaderOptions
	// MaxBodyBytes caps how much body the validation stage reads.
	MaxBodyBytes int64
	Now          func() time.Time
}

// Pipeline runs the guard stages in a fixed order per inbound request and
// decorates every response on the way out. It exclusively owns all guard
// state; nothing else mutates the stores.
type Pipeline struct {
	rate      *RateGuard
	ipBlocks  *IPBlockGuard
	validator *PatternValidator
	csrf      *CSRFGuard
	tracker   *SuspiciousActivityTracker
	audit     *AuditEmitter
	metrics   *Metrics
	logger    Logger
	headers   HeaderOptions
	maxBody   int64
	now       func() time.Time
}

// NewPipeline wires the guard chain, building any guard not supplied.
func NewPipeline(opts PipelineOptions) *Pipeline {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.IPBlocks == nil {
		opts.IPBlocks = NewIPBlockGuard(now)
	}
	if opts.RateGuard == nil {
		opts.RateGuard = NewRateGuard(RateGuardOptions{Now: now})
	}
	if opts.Validator == nil {
		opts.Validator = NewPatternValidator(0)
	}
	if opts.CSRF == nil {
		opts.CSRF = NewCSRFGuard(CSRFGuardOptions{Now: now})
	}
	if opts.Tracker == nil {
		opts.Tracker = NewSuspiciousActivityTracker(opts.IPBlocks, TrackerOptions{Now: now})
	}
	if opts.Logger == nil {
		opts.Logger = NopLogger{}
	}
	if opts.Audit == nil {
		opts.Audit = NewAuditEmitter(AuditOptions{Logger: opts.Logger})
	}
	if opts.Metrics != nil && opts.Audit.onDrop == nil {
		opts.Audit.onDrop = opts.Metrics.IncAuditDropped
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Pipeline{
		rate:      opts.RateGuard,
		ipBlocks:  opts.IPBlocks,
		validator: opts.Validator,
		csrf:      opts.CSRF,
		tracker:   opts.Tracker,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		headers:   opts.Headers.withDefaults(),
		maxBody:   opts.MaxBodyBytes,
		now:       now,
	}
}

// CSRF returns the CSRF guard for token issuance endpoints.
func (p *Pipeline) CSRF() *CSRFGuard {
	if p == nil {
		return nil
	}
	return p.csrf
}

// IPBlocks returns the denylist guard for the admin surface.
func (p *Pipeline) IPBlocks() *IPBlockGuard {
	if p == nil {
		return nil
	}
	return p.ipBlocks
}

// Tracker returns the suspicious-activity tracker for the admin surface.
func (p *Pipeline) Tracker() *SuspiciousActivityTracker {
	if p == nil {
		return nil
	}
	return p.tracker
}

// NewContext builds the per-request correlation record.
func (p *Pipeline) NewContext(r *http.Request) Context {
	userAgent := ""
	if r != nil {
		userAgent = r.Header.Get("User-Agent")
	}
	if userAgent == "" {
		userAgent = "unknown"
	}
	return Context{
		IP:        ClientIP(r),
		UserAgent: userAgent,
		RequestID: uuid.NewString(),
		Start:     p.clock()(),
	}
}

func (p *Pipeline) clock() func() time.Time {
	if p == nil || p.now == nil {
		return time.Now
	}
	return p.now
}

// Process runs the guard chain for r. A nil result means "continue"; a
// non-nil Rejection terminates the request. Internal faults never reject:
// the pipeline fails open so a security-layer bug cannot take the
// storefront down.
func (p *Pipeline) Process(r *http.Request) *Rejection {
	sctx := p.NewContext(r)
	return p.process(r, sctx)
}

func (p *Pipeline) process(r *http.Request, sctx Context) (rejection *Rejection) {
	if p == nil || r == nil {
		return nil
	}
	start := p.clock()()
	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveDuration(time.Since(start).Seconds())
			if rejection != nil {
				p.metrics.IncRequest("rejected")
				p.metrics.IncRejection(rejection.Code)
			} else {
				p.metrics.IncRequest("allowed")
			}
		}
	}()
	defer func() {
		if recovered := recover(); recovered != nil {
			p.audit.Emit(EventMiddlewareError, sctx, map[string]any{"error": fmt.Sprint(recovered)})
			p.logger.Error("security middleware fault", map[string]any{
				"error":     fmt.Sprint(recovered),
				"requestId": sctx.RequestID,
			})
			rejection = nil
		}
	}()

	// 1. DDoS burst/sustained thresholds.
	if decision := p.rate.CheckDDoS(sctx.IP); !decision.Allowed {
		p.audit.Emit(EventDDoSBlocked, sctx, map[string]any{"path": r.URL.Path})
		return &Rejection{
			Status:     http.StatusTooManyRequests,
			Code:       CodeDDoSProtection,
			Message:    "Too many requests",
			RetryAfter: decision.RetryAfter,
			Limit:      decision.Limit,
		}
	}

	// 2. IP denylist.
	if p.ipBlocks.IsBlocked(sctx.IP) {
		p.audit.Emit(EventIPBlocked, sctx, map[string]any{"path": r.URL.Path})
		return &Rejection{
			Status:  http.StatusForbidden,
			Code:    CodeIPBlocked,
			Message: "Access denied",
		}
	}

	// 3. General rate limit.
	if decision := p.rate.CheckRate(sctx.IP, r.URL.Path); !decision.Allowed {
		p.audit.Emit(EventRateLimitExceeded, sctx, map[string]any{"path": r.URL.Path})
		return &Rejection{
			Status:     http.StatusTooManyRequests,
			Code:       CodeRateLimit,
			Message:    "Rate limit exceeded",
			RetryAfter: decision.RetryAfter,
			Limit:      decision.Limit,
			Remaining:  decision.Remaining,
		}
	}

	// 4. Body validation for mutating payload methods.
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if verdict := p.validateBody(r); !verdict.Valid {
			p.audit.Emit(EventInputValidationFailed, sctx, map[string]any{
				"path":   r.URL.Path,
				"reason": verdict.Reason,
			})
			return &Rejection{
				Status:  http.StatusBadRequest,
				Code:    CodeInputValidation,
				Message: "Invalid input",
			}
		}
	}

	// 5. CSRF for state-changing methods.
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		if verdict := p.csrf.Validate(r); !verdict.Valid {
			p.audit.Emit(EventCSRFInvalid, sctx, map[string]any{"path": r.URL.Path})
			return &Rejection{
				Status:  http.StatusForbidden,
				Code:    CodeCSRFProtection,
				Message: "Invalid CSRF token",
			}
		}
	}

	// 6. Suspicious-activity bookkeeping. Side effects only; the current
	// request always continues.
	if p.tracker.Record(r.URL.Path, sctx.UserAgent, sctx.IP) {
		p.audit.Emit(EventSuspiciousActivity, sctx, map[string]any{"path": r.URL.Path})
	}

	return nil
}

// validateBody reads and scans the request body, then restores it so the
// upstream handler can read it again. Read and parse failures are
// validation failures.
func (p *Pipeline) validateBody(r *http.Request) Verdict {
	if r.Body == nil || r.Body == http.NoBody {
		return Verdict{Valid: true}
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, p.maxBody+1))
	r.Body.Close()
	if err != nil {
		r.Body = http.NoBody
		return Verdict{Valid: false, Reason: "Invalid request body"}
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if int64(len(body)) > p.maxBody {
		return Verdict{Valid: false, Reason: "Request body exceeds maximum size"}
	}
	return p.validator.ValidateBody(r.Header.Get("Content-Type"), body)
}

// Middleware wraps next with the guard chain and response decoration.
// Decoration applies to every response, rejected or passed, and repeated
// application yields the same final header set.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sctx := p.NewContext(r)
		rejection := p.process(r, sctx)
		tw := &decoratingWriter{
			ResponseWriter: w,
			opts:           p.headers,
			requestID:      sctx.RequestID,
			start:          sctx.Start,
		}
		if rejection != nil {
			writeRejection(tw, rejection)
			return
		}
		next.ServeHTTP(tw, r)
	})
}

// Sweep removes expired entries from every guard store and reports the
// total reclaimed.
func (p *Pipeline) Sweep(now time.Time) int {
	if p == nil {
		return 0
	}
	removed := p.rate.Sweep(now)
	removed += p.ipBlocks.Sweep(now)
	removed += p.csrf.Sweep(now)
	removed += p.tracker.Sweep(now)
	if p.metrics != nil {
		p.metrics.IncSweep(removed)
	}
	return removed
}

type rejectionBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

func writeRejection(w http.ResponseWriter, rejection *Rejection) {
	if rejection.RetryAfter > 0 {
		seconds := int64(rejection.RetryAfter / time.Second)
		if rejection.RetryAfter%time.Second != 0 {
			seconds++
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}
	if rejection.Status == http.StatusTooManyRequests && rejection.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rejection.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rejection.Remaining))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rejection.Status)
	body := rejectionBody{
		Error:     rejection.Message,
		Code:      string(rejection.Code),
		Timestamp: time.Now().UnixMilli(),
	}
	_ = json.NewEncoder(w).Encode(body)
}
