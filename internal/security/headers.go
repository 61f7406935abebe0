package security

import (
	"net/http"
	"strconv"
	"time"
)

// Default header values for the storefront. The CSP mirrors the script,
// style, image, and frame sources the storefront actually loads.
const (
	DefaultCSP = "default-src 'self'; script-src 'self' 'unsafe-inline' https://www.googletagmanager.com https://js.stripe.com; " +
		"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; img-src 'self' data: blob: https:; " +
		"font-src 'self' data: https://fonts.gstatic.com; connect-src 'self' https://api.stripe.com https://www.google-analytics.com; " +
		"frame-src 'self' https://js.stripe.com; object-src 'none'; base-uri 'self'; form-action 'self'; " +
		"frame-ancestors 'self'; upgrade-insecure-requests;"
	DefaultFrameOptions      = "SAMEORIGIN"
	DefaultReferrerPolicy    = "strict-origin-when-cross-origin"
	DefaultPermissionsPolicy = "camera=(), microphone=(), geolocation=(), payment=*, usb=(), interest-cohort=()"
	hstsValue                = "max-age=63072000; includeSubDomains; preload"
)

// HeaderOptions configures response decoration.
type HeaderOptions struct {
	CSP               string
	FrameOptions      string
	ReferrerPolicy    string
	PermissionsPolicy string
	// HSTS is emitted only when enabled and Production is set.
	HSTS       bool
	Production bool
}

func (o HeaderOptions) withDefaults() HeaderOptions {
	if o.CSP == "" {
		o.CSP = DefaultCSP
	}
	if o.FrameOptions == "" {
		o.FrameOptions = DefaultFrameOptions
	}
	if o.ReferrerPolicy == "" {
		o.ReferrerPolicy = DefaultReferrerPolicy
	}
	if o.PermissionsPolicy == "" {
		o.PermissionsPolicy = DefaultPermissionsPolicy
	}
	return o
}

// decorate applies the security and diagnostic headers and strips the
// server-identifying ones. Set/Del keep it idempotent across repeated
// application.
func decorate(h http.Header, opts HeaderOptions, requestID string) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", opts.FrameOptions)
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", opts.ReferrerPolicy)
	h.Set("Permissions-Policy", opts.PermissionsPolicy)
	h.Set("Content-Security-Policy", opts.CSP)
	if opts.HSTS && opts.Production {
		h.Set("Strict-Transport-Security", hstsValue)
	}
	h.Set("X-Request-ID", requestID)
	h.Del("X-Powered-By")
	h.Del("Server")
}

// decoratingWriter applies the security headers and X-Response-Time at
// the moment headers are committed. Decorating that late means headers an
// origin contributed earlier in the handler chain cannot survive the
// strip or override the security set.
type decoratingWriter struct {
	http.ResponseWriter
	opts        HeaderOptions
	requestID   string
	start       time.Time
	wroteHeader bool
}

func (w *decoratingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		decorate(w.Header(), w.opts, w.requestID)
		elapsed := time.Since(w.start)
		w.Header().Set("X-Response-Time", strconv.FormatInt(elapsed.Milliseconds(), 10)+"ms")
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *decoratingWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(p)
}
