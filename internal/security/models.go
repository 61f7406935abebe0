package security

import "time"

// RateWindow is one client's counting state within a fixed time window.
type RateWindow struct {
	Count   int64
	ResetAt time.Time
	Blocked bool
}

// BlockEntry is a denylist record for an IP address.
type BlockEntry struct {
	Until    time.Time
	Attempts int
}

// CSRFToken is a per-session anti-forgery secret.
type CSRFToken struct {
	Token     string
	ExpiresAt time.Time
}

// SuspiciousCounter tallies heuristic-matched requests per IP.
type SuspiciousCounter struct {
	Count        int
	LastActivity time.Time
}

// Context is the per-request correlation record threaded through guards
// and into audit entries. It is never persisted.
type Context struct {
	IP        string
	UserAgent string
	RequestID string
	Start     time.Time
}

// Decision is the outcome of a counting guard.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Verdict is the outcome of payload validation.
type Verdict struct {
	Valid  bool
	Reason string
}

// Rejection terminates request processing with a structured error response.
type Rejection struct {
	Status     int
	Code       ErrorCode
	Message    string
	RetryAfter time.Duration
	Limit      int64
	Remaining  int64
}

// BlockedIP describes a live denylist entry for the admin surface.
type BlockedIP struct {
	IP       string    `json:"ip"`
	Until    time.Time `json:"until"`
	Attempts int       `json:"attempts"`
}

// SuspiciousIP describes a live suspicious-activity counter for the admin
// surface.
type SuspiciousIP struct {
	IP           string    `json:"ip"`
	Count        int       `json:"count"`
	LastActivity time.Time `json:"lastActivity"`
}
