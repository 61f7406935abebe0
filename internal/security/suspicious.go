package security

import (
	"regexp"
	"sort"
	"time"
)

// Sensitive-path signatures: admin panels, config and VCS artifacts,
// backup and debug endpoints. Matched case-insensitively anywhere in the
// request path.
var suspiciousPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)admin`),
	regexp.MustCompile(`(?i)wp-admin`),
	regexp.MustCompile(`(?i)phpmyadmin`),
	regexp.MustCompile(`(?i)\.env`),
	regexp.MustCompile(`(?i)\.git`),
	regexp.MustCompile(`(?i)\.svn`),
	regexp.MustCompile(`(?i)config`),
	regexp.MustCompile(`(?i)backup`),
	regexp.MustCompile(`(?i)debug`),
}

// Bot signature minus the allowlist of crawlers the storefront wants
// indexed by or previewed in.
var (
	suspiciousAgentPattern = regexp.MustCompile(`(?i)bot|crawler|spider|scraper`)
	allowedAgentPattern    = regexp.MustCompile(`(?i)googlebot|bingbot|duckduckbot|facebookexternalhit|twitterbot`)
)

// TrackerOptions configures suspicious-activity tracking.
type TrackerOptions struct {
	// Threshold is the per-IP match count at which the IP gets blocked.
	Threshold int
	// BlockDuration is the denylist duration applied at the threshold.
	BlockDuration time.Duration
	// EntryTTL expires idle counters so a stray probe months ago does not
	// count against a returning customer.
	EntryTTL time.Duration
	Now      func() time.Time
}

// SuspiciousActivityTracker pattern-matches request paths and user agents
// and feeds the IP denylist when an address keeps probing. It never
// rejects the request that tripped it: detect now, block future.
type SuspiciousActivityTracker struct {
	counters *Store[SuspiciousCounter]
	blocks   *IPBlockGuard
	opts     TrackerOptions
	now      func() time.Time
}

// NewSuspiciousActivityTracker constructs a tracker feeding blocks.
func NewSuspiciousActivityTracker(blocks *IPBlockGuard, opts TrackerOptions) *SuspiciousActivityTracker {
	if opts.Threshold <= 0 {
		opts.Threshold = 10
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = time.Hour
	}
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SuspiciousActivityTracker{
		counters: NewStore[SuspiciousCounter](),
		blocks:   blocks,
		opts:     opts,
		now:      now,
	}
}

// Record tests path and userAgent against the signatures and, on a match,
// increments the per-IP counter. Crossing the threshold blocks the IP.
// Reports whether the request matched a signature.
func (t *SuspiciousActivityTracker) Record(path, userAgent, ip string) bool {
	if t == nil {
		return false
	}
	if !suspiciousPath(path) && !suspiciousAgent(userAgent) {
		return false
	}
	now := t.now()
	counter := t.counters.Mutate(ip, now, func(counter SuspiciousCounter, live bool) (SuspiciousCounter, time.Time) {
		counter.Count++
		counter.LastActivity = now
		return counter, now.Add(t.opts.EntryTTL)
	})
	if counter.Count >= t.opts.Threshold {
		t.blocks.Block(ip, t.opts.BlockDuration)
	}
	return true
}

// Snapshot lists live counters ordered by IP for the admin surface.
func (t *SuspiciousActivityTracker) Snapshot() []SuspiciousIP {
	if t == nil {
		return nil
	}
	var out []SuspiciousIP
	t.counters.Range(t.now(), func(ip string, counter SuspiciousCounter) bool {
		out = append(out, SuspiciousIP{IP: ip, Count: counter.Count, LastActivity: counter.LastActivity})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Sweep removes idle counters and reports the removal count.
func (t *SuspiciousActivityTracker) Sweep(now time.Time) int {
	if t == nil {
		return 0
	}
	return t.counters.Sweep(now)
}

func suspiciousPath(path string) bool {
	for _, pattern := range suspiciousPathPatterns {
		if pattern.MatchString(path) {
			return true
		}
	}
	return false
}

func suspiciousAgent(userAgent string) bool {
	return suspiciousAgentPattern.MatchString(userAgent) && !allowedAgentPattern.MatchString(userAgent)
}
