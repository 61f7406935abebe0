package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CSRFGuardOptions configures token issuance and validation.
type CSRFGuardOptions struct {
	// TokenExpiry bounds token lifetime. Default one hour.
	TokenExpiry time.Duration
	// SafePrefixes are path prefixes exempt from validation (API and
	// webhook namespaces authenticate by other means).
	SafePrefixes []string
	Now          func() time.Time
}

// CSRFGuard issues and validates per-session anti-forgery tokens. Tokens
// are reusable until expiry rather than single-use, which keeps concurrent
// form submissions working.
type CSRFGuard struct {
	tokens       *Store[CSRFToken]
	expiry       time.Duration
	safePrefixes []string
	now          func() time.Time
}

var csrfSafeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// NewCSRFGuard constructs a guard with defaults filled in.
func NewCSRFGuard(opts CSRFGuardOptions) *CSRFGuard {
	if opts.TokenExpiry <= 0 {
		opts.TokenExpiry = time.Hour
	}
	if opts.SafePrefixes == nil {
		opts.SafePrefixes = []string{"/api/", "/webhooks/"}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &CSRFGuard{
		tokens:       NewStore[CSRFToken](),
		expiry:       opts.TokenExpiry,
		safePrefixes: opts.SafePrefixes,
		now:          now,
	}
}

// Issue derives an opaque token for sessionKey, stores it until expiry,
// and returns it for embedding in a cookie or header. Reissuing replaces
// the previous token.
func (g *CSRFGuard) Issue(sessionKey string) (string, error) {
	if g == nil {
		return "", Wrap(CodeInternal, "csrf guard is not configured", nil)
	}
	if sessionKey == "" {
		return "", Wrap(CodeCSRFProtection, "session key is required", nil)
	}
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", Wrap(CodeInternal, "token nonce generation failed", err)
	}
	now := g.now()
	digest := sha256.New()
	digest.Write([]byte(sessionKey))
	digest.Write([]byte(strconv.FormatInt(now.UnixNano(), 10)))
	digest.Write(nonce)
	token := hex.EncodeToString(digest.Sum(nil))

	expiresAt := now.Add(g.expiry)
	g.tokens.Set(sessionKey, CSRFToken{Token: token, ExpiresAt: expiresAt}, expiresAt)
	return token, nil
}

// Validate checks the presented token for a mutating request. Safe
// methods and safe path prefixes pass unconditionally.
func (g *CSRFGuard) Validate(r *http.Request) Verdict {
	if g == nil || r == nil {
		return Verdict{Valid: true}
	}
	if csrfSafeMethods[r.Method] {
		return Verdict{Valid: true}
	}
	path := r.URL.Path
	for _, prefix := range g.safePrefixes {
		if strings.HasPrefix(path, prefix) {
			return Verdict{Valid: true}
		}
	}

	presented := r.Header.Get("X-CSRF-Token")
	if presented == "" {
		if cookie, err := r.Cookie("csrf-token"); err == nil {
			presented = cookie.Value
		}
	}
	session := sessionKey(r)
	if presented == "" || session == "" {
		return Verdict{Valid: false, Reason: "missing token or session"}
	}

	now := g.now()
	stored, ok := g.tokens.Get(session, now)
	if !ok || now.After(stored.ExpiresAt) {
		return Verdict{Valid: false, Reason: "no live token for session"}
	}
	if subtle.ConstantTimeCompare([]byte(stored.Token), []byte(presented)) != 1 {
		return Verdict{Valid: false, Reason: "token mismatch"}
	}
	return Verdict{Valid: true}
}

// Sweep removes expired tokens and reports the removal count.
func (g *CSRFGuard) Sweep(now time.Time) int {
	if g == nil {
		return 0
	}
	return g.tokens.Sweep(now)
}
