package security

import (
	"sort"
	"time"
)

// IPBlockGuard maintains the IP denylist. Entries past their expiry read
// as not-blocked immediately; the sweep reclaims them later.
type IPBlockGuard struct {
	entries *Store[BlockEntry]
	now     func() time.Time
}

// NewIPBlockGuard constructs an empty denylist.
func NewIPBlockGuard(now func() time.Time) *IPBlockGuard {
	if now == nil {
		now = time.Now
	}
	return &IPBlockGuard{entries: NewStore[BlockEntry](), now: now}
}

// IsBlocked reports whether ip has a live denylist entry.
func (g *IPBlockGuard) IsBlocked(ip string) bool {
	if g == nil {
		return false
	}
	entry, ok := g.entries.Get(ip, g.now())
	return ok && g.now().Before(entry.Until)
}

// Block creates or overwrites the denylist entry for ip, extending any
// existing block to now + duration and bumping the attempt count.
func (g *IPBlockGuard) Block(ip string, duration time.Duration) {
	if g == nil || ip == "" || duration <= 0 {
		return
	}
	now := g.now()
	g.entries.Mutate(ip, now, func(entry BlockEntry, live bool) (BlockEntry, time.Time) {
		until := now.Add(duration)
		return BlockEntry{Until: until, Attempts: entry.Attempts + 1}, until
	})
}

// Snapshot lists live block entries ordered by IP.
func (g *IPBlockGuard) Snapshot() []BlockedIP {
	if g == nil {
		return nil
	}
	now := g.now()
	var out []BlockedIP
	g.entries.Range(now, func(ip string, entry BlockEntry) bool {
		out = append(out, BlockedIP{IP: ip, Until: entry.Until, Attempts: entry.Attempts})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Sweep removes expired entries and reports the removal count.
func (g *IPBlockGuard) Sweep(now time.Time) int {
	if g == nil {
		return 0
	}
	return g.entries.Sweep(now)
}
