// Package config provides configuration for the gateway wiring.
package config

import "time"

// RoutePreset binds a path prefix to its own rate-limit window. An empty
// preset list keeps the built-in route table.
type RoutePreset struct {
	Prefix      string
	Name        string
	Window      time.Duration
	MaxRequests int64
}

// Config captures runtime settings for the security gateway.
type Config struct {
	ListenAddr  string
	UpstreamURL string
	Environment string

	RateLimitRequests   int64
	RateLimitWindow     time.Duration
	BlockDuration       time.Duration
	BurstLimit          int64
	SustainedThreshold  int64
	DDoSWindow          time.Duration
	DDoSBlockDuration   time.Duration
	CSRFTokenExpiry     time.Duration
	CSRFSafePrefixes    []string
	SuspiciousThreshold int64
	SuspiciousBlock     time.Duration
	MaxBodyBytes        int64
	MaxFieldLength      int
	RoutePresets        []RoutePreset

	// Empty header values keep the built-in defaults.
	EnableHSTS            bool
	ContentSecurityPolicy string
	FrameOptions          string
	ReferrerPolicy        string
	PermissionsPolicy     string

	AuditEndpoint      string
	AuditLevel         string
	AuditEmitPerSecond float64
	AuditEmitBurst     int

	EnableAuth bool
	AdminToken string

	SweepInterval    time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	DrainTimeout     time.Duration
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          ":8080",
		Environment:         "development",
		RateLimitRequests:   100,
		RateLimitWindow:     time.Minute,
		BlockDuration:       15 * time.Minute,
		BurstLimit:          50,
		SustainedThreshold:  1000,
		DDoSWindow:          time.Minute,
		DDoSBlockDuration:   15 * time.Minute,
		CSRFTokenExpiry:     time.Hour,
		CSRFSafePrefixes:    []string{"/api/", "/webhooks/"},
		SuspiciousThreshold: 10,
		SuspiciousBlock:     time.Hour,
		MaxBodyBytes:        1 << 20,
		MaxFieldLength:      10000,
		AuditLevel:          "info",
		AuditEmitPerSecond:  50,
		AuditEmitBurst:      100,
		SweepInterval:       5 * time.Minute,
		HTTPReadTimeout:     5 * time.Second,
		HTTPWriteTimeout:    10 * time.Second,
		HTTPIdleTimeout:     60 * time.Second,
		DrainTimeout:        5 * time.Second,
	}
}

// Production reports whether the gateway runs with production hardening.
func (c *Config) Production() bool {
	return c != nil && c.Environment == "production"
}
