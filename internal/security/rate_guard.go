package security

import "time"

// RateGuardOptions configures the counting guards.
type RateGuardOptions struct {
	// Requests and Window bound the general fixed-window limit.
	Requests int64
	Window   time.Duration
	// BlockDuration extends the window once the general limit is exceeded.
	BlockDuration time.Duration
	// BurstLimit and SustainedThreshold bound the DDoS counter on its own
	// rolling window; tripping the sustained threshold blocks for
	// DDoSBlockDuration.
	BurstLimit         int64
	SustainedThreshold int64
	DDoSWindow         time.Duration
	DDoSBlockDuration  time.Duration

	Presets  *PresetTable
	Adaptive *AdaptiveLimiter
	Now      func() time.Time
}

// RateGuard keeps fixed-window counters per client key for the general
// rate limit and the DDoS burst/sustained limit. Fixed windows trade
// boundary precision for O(1) state per key.
type RateGuard struct {
	windows  *Store[RateWindow]
	opts     RateGuardOptions
	presets  *PresetTable
	adaptive *AdaptiveLimiter
	now      func() time.Time
}

// NewRateGuard constructs a guard with defaults filled in.
func NewRateGuard(opts RateGuardOptions) *RateGuard {
	if opts.Requests <= 0 {
		opts.Requests = 100
	}
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.BlockDuration <= 0 {
		opts.BlockDuration = 15 * time.Minute
	}
	if opts.BurstLimit <= 0 {
		opts.BurstLimit = 50
	}
	if opts.SustainedThreshold <= 0 {
		opts.SustainedThreshold = 1000
	}
	if opts.DDoSWindow <= 0 {
		opts.DDoSWindow = time.Minute
	}
	if opts.DDoSBlockDuration <= 0 {
		opts.DDoSBlockDuration = 15 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	presets := opts.Presets
	if presets == nil {
		presets = NewPresetTable(nil, Preset{Name: "general", Window: opts.Window, MaxRequests: opts.Requests})
	}
	return &RateGuard{
		windows:  NewStore[RateWindow](),
		opts:     opts,
		presets:  presets,
		adaptive: opts.Adaptive,
		now:      now,
	}
}

// CheckDDoS counts one request against the burst/sustained thresholds for
// key. The counter always increments, so a client that keeps hammering
// past the burst limit still climbs toward the sustained threshold, which
// extends the window into a block and keeps extending it while the
// hammering continues.
func (g *RateGuard) CheckDDoS(key string) Decision {
	if g == nil {
		return Decision{Allowed: true}
	}
	now := g.now()
	burst := g.opts.BurstLimit
	sustained := g.opts.SustainedThreshold

	var decision Decision
	g.windows.Mutate("ddos:"+key, now, func(window RateWindow, live bool) (RateWindow, time.Time) {
		if !live {
			window = RateWindow{ResetAt: now.Add(g.opts.DDoSWindow)}
		}
		window.Count++
		switch {
		case window.Count > sustained:
			window.Blocked = true
			window.ResetAt = now.Add(g.opts.DDoSBlockDuration)
			decision = denied(sustained, 0, window.ResetAt.Sub(now))
		case window.Count > burst:
			decision = denied(burst, 0, window.ResetAt.Sub(now))
		default:
			decision = allowed(burst, burst-window.Count)
		}
		return window, window.ResetAt
	})
	return decision
}

// CheckRate counts one request against the general limit for key. The
// preset table picks the window parameters from the request path; while a
// window is blocked every call is denied without counting until the
// extended reset instant passes.
func (g *RateGuard) CheckRate(key, path string) Decision {
	if g == nil {
		return Decision{Allowed: true}
	}
	now := g.now()
	preset := g.presets.Resolve(path)
	if preset.MaxRequests <= 0 {
		preset = Preset{Name: "general", Window: g.opts.Window, MaxRequests: g.opts.Requests}
	}
	limit := scaleLimit(preset.MaxRequests, g.adaptive.Multiplier())

	var decision Decision
	g.windows.Mutate("rate:"+preset.Name+":"+key, now, func(window RateWindow, live bool) (RateWindow, time.Time) {
		if !live {
			window = RateWindow{ResetAt: now.Add(preset.Window)}
		}
		if window.Blocked && now.Before(window.ResetAt) {
			decision = denied(limit, 0, window.ResetAt.Sub(now))
			return window, window.ResetAt
		}
		window.Count++
		if window.Count > limit {
			window.Blocked = true
			window.ResetAt = now.Add(g.opts.BlockDuration)
			decision = denied(limit, 0, window.ResetAt.Sub(now))
		} else {
			decision = allowed(limit, limit-window.Count)
		}
		return window, window.ResetAt
	})
	return decision
}

// Sweep removes expired windows and reports the removal count.
func (g *RateGuard) Sweep(now time.Time) int {
	if g == nil {
		return 0
	}
	return g.windows.Sweep(now)
}

func allowed(limit, remaining int64) Decision {
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: limit, Remaining: remaining}
}

func denied(limit, remaining int64, retryAfter time.Duration) Decision {
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{Allowed: false, Limit: limit, Remaining: remaining, RetryAfter: retryAfter}
}
