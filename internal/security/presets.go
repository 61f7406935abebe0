package security

import (
	"sort"
	"strings"
	"time"
)

// Preset names the rate-limit parameters applied to a route family.
// Distinct presets count in distinct windows, so a burst against the
// search endpoints cannot consume the quota of the checkout forms.
type Preset struct {
	Name        string
	Window      time.Duration
	MaxRequests int64
}

// RoutePreset binds a path prefix to a preset.
type RoutePreset struct {
	Prefix string
	Preset Preset
}

// PresetTable resolves the rate-limit preset for a request path by longest
// matching prefix, falling back to the general preset.
type PresetTable struct {
	routes  []RoutePreset
	general Preset
}

// DefaultPresets returns the storefront route presets: strict windows for
// authentication and form submissions, a moderate API budget, and a lower
// search budget to keep scrapers off the catalog.
func DefaultPresets() []RoutePreset {
	return []RoutePreset{
		{Prefix: "/api/auth", Preset: Preset{Name: "auth", Window: 15 * time.Minute, MaxRequests: 5}},
		{Prefix: "/api", Preset: Preset{Name: "api", Window: time.Minute, MaxRequests: 60}},
		{Prefix: "/search", Preset: Preset{Name: "search", Window: time.Minute, MaxRequests: 20}},
		{Prefix: "/contact", Preset: Preset{Name: "forms", Window: time.Minute, MaxRequests: 5}},
		{Prefix: "/quote", Preset: Preset{Name: "forms", Window: time.Minute, MaxRequests: 5}},
	}
}

// NewPresetTable constructs a table over routes with the given general
// fallback. Longer prefixes win regardless of input order.
func NewPresetTable(routes []RoutePreset, general Preset) *PresetTable {
	sorted := make([]RoutePreset, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &PresetTable{routes: sorted, general: general}
}

// Resolve returns the preset for path.
func (t *PresetTable) Resolve(path string) Preset {
	if t == nil {
		return Preset{}
	}
	for _, route := range t.routes {
		if route.Prefix != "" && strings.HasPrefix(path, route.Prefix) {
			return route.Preset
		}
	}
	return t.general
}
