package security

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Audit event names. Stable strings consumed by the log pipeline.
const (
	EventDDoSBlocked           = "DDOS_BLOCKED"
	EventIPBlocked             = "IP_BLOCKED"
	EventRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	EventInputValidationFailed = "INPUT_VALIDATION_FAILED"
	EventCSRFInvalid           = "CSRF_INVALID"
	EventSuspiciousActivity    = "SUSPICIOUS_ACTIVITY"
	EventMiddlewareError       = "SECURITY_MIDDLEWARE_ERROR"
)

// AuditOptions configures the emitter.
type AuditOptions struct {
	// Endpoint receives audit entries; empty means local logging only.
	Endpoint string
	// Level labels every entry.
	Level string
	// EmitPerSecond and EmitBurst cap sink calls so a rejection flood
	// cannot amplify into a sink flood; entries over the cap are dropped.
	EmitPerSecond float64
	EmitBurst     int
	Client        *http.Client
	Logger        Logger
}

// AuditEmitter delivers security events to the audit sink, best effort.
// Delivery is asynchronous and failures never affect the request outcome.
type AuditEmitter struct {
	endpoint string
	level    string
	client   *http.Client
	limiter  *rate.Limiter
	logger   Logger
	wg       sync.WaitGroup
	onDrop   func()
}

type auditEntry struct {
	Event     string         `json:"event"`
	Context   map[string]any `json:"context"`
	Timestamp int64          `json:"timestamp"`
	Level     string         `json:"level"`
}

// NewAuditEmitter constructs an emitter with defaults filled in.
func NewAuditEmitter(opts AuditOptions) *AuditEmitter {
	if opts.Level == "" {
		opts.Level = "info"
	}
	if opts.EmitPerSecond <= 0 {
		opts.EmitPerSecond = 50
	}
	if opts.EmitBurst <= 0 {
		opts.EmitBurst = 100
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = NopLogger{}
	}
	return &AuditEmitter{
		endpoint: opts.Endpoint,
		level:    opts.Level,
		client:   opts.Client,
		limiter:  rate.NewLimiter(rate.Limit(opts.EmitPerSecond), opts.EmitBurst),
		logger:   opts.Logger,
	}
}

// Emit records event with the request context plus extra fields. The sink
// call runs in its own goroutine and is never awaited by the caller.
func (e *AuditEmitter) Emit(event string, sctx Context, extra map[string]any) {
	if e == nil {
		return
	}
	fields := map[string]any{
		"ip":        sctx.IP,
		"userAgent": sctx.UserAgent,
		"requestId": sctx.RequestID,
	}
	for key, value := range extra {
		fields[key] = value
	}
	e.logger.Info("security event", map[string]any{"event": event, "context": fields})

	if e.endpoint == "" {
		return
	}
	if !e.limiter.Allow() {
		if e.onDrop != nil {
			e.onDrop()
		}
		return
	}
	entry := auditEntry{
		Event:     event,
		Context:   fields,
		Timestamp: time.Now().UnixMilli(),
		Level:     e.level,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		resp, err := e.client.Post(e.endpoint, "application/json", bytes.NewReader(payload))
		if err != nil {
			e.logger.Warn("audit delivery failed", map[string]any{"error": err.Error()})
			return
		}
		resp.Body.Close()
	}()
}

// Close waits for in-flight deliveries. Used on shutdown and in tests.
func (e *AuditEmitter) Close() {
	if e == nil {
		return
	}
	e.wg.Wait()
}
