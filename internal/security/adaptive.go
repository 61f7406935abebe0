package security

import "sync"

// LoadMetrics reports server load used to scale rate limits down under
// pressure. Zero values mean "not measured".
type LoadMetrics struct {
	CPUPercent     float64 `json:"cpuPercent"`
	MemoryPercent  float64 `json:"memoryPercent"`
	ErrorRate      float64 `json:"errorRate"`
	ResponseTimeMs float64 `json:"responseTimeMs"`
}

// AdaptiveLimiter derives a multiplier for the general rate-limit
// threshold from reported load. Unfed, it leaves limits untouched.
type AdaptiveLimiter struct {
	mu         sync.Mutex
	multiplier float64
}

// NewAdaptiveLimiter constructs a limiter at the neutral multiplier.
func NewAdaptiveLimiter() *AdaptiveLimiter {
	return &AdaptiveLimiter{multiplier: 1.0}
}

// Adjust recomputes the multiplier from the reported metrics.
func (a *AdaptiveLimiter) Adjust(metrics LoadMetrics) {
	multiplier := 1.0
	switch {
	case metrics.CPUPercent > 80:
		multiplier *= 0.5
	case metrics.CPUPercent > 60:
		multiplier *= 0.75
	}
	if metrics.MemoryPercent > 80 {
		multiplier *= 0.5
	}
	if metrics.ErrorRate > 0.1 {
		multiplier *= 0.6
	}
	if metrics.ResponseTimeMs > 1000 {
		multiplier *= 0.7
	}
	a.mu.Lock()
	a.multiplier = multiplier
	a.mu.Unlock()
}

// Multiplier returns the current scaling factor.
func (a *AdaptiveLimiter) Multiplier() float64 {
	if a == nil {
		return 1.0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.multiplier
}

// Reset restores the neutral multiplier.
func (a *AdaptiveLimiter) Reset() {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.multiplier = 1.0
	a.mu.Unlock()
}

// scaleLimit applies the multiplier to limit, never dropping below one
// allowed request per window.
func scaleLimit(limit int64, multiplier float64) int64 {
	if multiplier >= 1.0 || multiplier <= 0 {
		return limit
	}
	scaled := int64(float64(limit) * multiplier)
	if scaled < 1 {
		scaled = 1
	}
	return scaled
}
