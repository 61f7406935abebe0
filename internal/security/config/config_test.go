package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scaroll/pgclosets-store-sub011/internal/security/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(config.LoadOptions{Args: []string{}, Environ: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %d/%v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.BurstLimit != 50 || cfg.SustainedThreshold != 1000 {
		t.Fatalf("unexpected ddos defaults: %d/%d", cfg.BurstLimit, cfg.SustainedThreshold)
	}
	if cfg.Production() {
		t.Fatalf("defaults must not be production")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.json")
	body := `{
		"listenAddr": ":9000",
		"rateLimitRequests": 20,
		"rateLimitWindowMs": 30000,
		"enableHsts": true,
		"environment": "production"
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := config.Load(config.LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("file listen addr not applied: %q", cfg.ListenAddr)
	}
	if cfg.RateLimitRequests != 20 || cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("file rate limit not applied: %d/%v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if !cfg.EnableHSTS || !cfg.Production() {
		t.Fatalf("file hardening flags not applied: %#v", cfg)
	}
	// Untouched fields keep defaults.
	if cfg.BurstLimit != 50 {
		t.Fatalf("burst limit must keep its default, got %d", cfg.BurstLimit)
	}
}

func TestLoadFileRoutePresetsAndTunables(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.json")
	body := `{
		"csrfSafePrefixes": ["/hooks/"],
		"frameOptions": "DENY",
		"permissionsPolicy": "camera=()",
		"auditEmitPerSecond": 5,
		"auditEmitBurst": 10,
		"httpReadTimeoutMs": 2000,
		"routePresets": [
			{"prefix": "/flash-sale", "name": "flash", "windowMs": 60000, "maxRequests": 2}
		]
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := config.Load(config.LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.CSRFSafePrefixes) != 1 || cfg.CSRFSafePrefixes[0] != "/hooks/" {
		t.Fatalf("unexpected safe prefixes: %#v", cfg.CSRFSafePrefixes)
	}
	if cfg.FrameOptions != "DENY" || cfg.PermissionsPolicy != "camera=()" {
		t.Fatalf("header tunables not applied: %#v", cfg)
	}
	if cfg.AuditEmitPerSecond != 5 || cfg.AuditEmitBurst != 10 {
		t.Fatalf("audit cap not applied: %v/%d", cfg.AuditEmitPerSecond, cfg.AuditEmitBurst)
	}
	if cfg.HTTPReadTimeout != 2*time.Second {
		t.Fatalf("read timeout not applied: %v", cfg.HTTPReadTimeout)
	}
	if len(cfg.RoutePresets) != 1 {
		t.Fatalf("unexpected presets: %#v", cfg.RoutePresets)
	}
	preset := cfg.RoutePresets[0]
	if preset.Prefix != "/flash-sale" || preset.Name != "flash" || preset.Window != time.Minute || preset.MaxRequests != 2 {
		t.Fatalf("unexpected preset: %#v", preset)
	}
}

func TestLoadRejectsIncompleteRoutePreset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.json")
	body := `{"routePresets": [{"prefix": "/flash-sale", "windowMs": 60000}]}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := config.Load(config.LoadOptions{ConfigPath: path, Args: []string{}, Environ: []string{}}); err == nil {
		t.Fatalf("expected error for preset without maxRequests")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.json")
	if err := os.WriteFile(path, []byte(`{"listenAddr": ":9000"}`), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigPath: path,
		Args:       []string{},
		Environ: []string{
			"SECGATE_LISTEN_ADDR=:9100",
			"SECGATE_BURST_LIMIT=75",
			"SECGATE_ADMIN_TOKEN=secret",
			"SECGATE_ENABLE_AUTH=true",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9100" {
		t.Fatalf("env must override file, got %q", cfg.ListenAddr)
	}
	if cfg.BurstLimit != 75 {
		t.Fatalf("env burst limit not applied: %d", cfg.BurstLimit)
	}
	if !cfg.EnableAuth || cfg.AdminToken != "secret" {
		t.Fatalf("env auth settings not applied: %#v", cfg)
	}
}

func TestLoadEnvHardeningOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(config.LoadOptions{
		Args: []string{},
		Environ: []string{
			"SECGATE_MAX_FIELD_LENGTH=500",
			"SECGATE_MAX_BODY_BYTES=2048",
			"SECGATE_CSP=default-src 'none'",
			"SECGATE_DDOS_WINDOW_MS=30000",
			"SECGATE_DDOS_BLOCK_DURATION_MS=600000",
			"SECGATE_CSRF_SAFE_PREFIXES=/hooks/, /partners/",
			"SECGATE_AUDIT_EMIT_PER_SECOND=2.5",
			"SECGATE_HTTP_WRITE_TIMEOUT_MS=4000",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxFieldLength != 500 || cfg.MaxBodyBytes != 2048 {
		t.Fatalf("size limits not applied: %d/%d", cfg.MaxFieldLength, cfg.MaxBodyBytes)
	}
	if cfg.ContentSecurityPolicy != "default-src 'none'" {
		t.Fatalf("csp not applied: %q", cfg.ContentSecurityPolicy)
	}
	if cfg.DDoSWindow != 30*time.Second || cfg.DDoSBlockDuration != 10*time.Minute {
		t.Fatalf("ddos windows not applied: %v/%v", cfg.DDoSWindow, cfg.DDoSBlockDuration)
	}
	if len(cfg.CSRFSafePrefixes) != 2 || cfg.CSRFSafePrefixes[1] != "/partners/" {
		t.Fatalf("safe prefixes not applied: %#v", cfg.CSRFSafePrefixes)
	}
	if cfg.AuditEmitPerSecond != 2.5 {
		t.Fatalf("audit cap not applied: %v", cfg.AuditEmitPerSecond)
	}
	if cfg.HTTPWriteTimeout != 4*time.Second {
		t.Fatalf("write timeout not applied: %v", cfg.HTTPWriteTimeout)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(config.LoadOptions{
		Args:    []string{"-listen", ":9200", "-upstream", "http://127.0.0.1:3000", "-env", "production"},
		Environ: []string{"SECGATE_LISTEN_ADDR=:9100"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9200" {
		t.Fatalf("flag must override env, got %q", cfg.ListenAddr)
	}
	if cfg.UpstreamURL != "http://127.0.0.1:3000" {
		t.Fatalf("flag upstream not applied: %q", cfg.UpstreamURL)
	}
	if !cfg.Production() {
		t.Fatalf("flag environment not applied: %q", cfg.Environment)
	}
}

func TestLoadRejectsBadEnvValues(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.LoadOptions{
		Args:    []string{},
		Environ: []string{"SECGATE_BURST_LIMIT=plenty"},
	})
	if err == nil {
		t.Fatalf("expected error for non-numeric burst limit")
	}

	_, err = config.Load(config.LoadOptions{
		Args:    []string{},
		Environ: []string{"SECGATE_ENABLE_HSTS=definitely"},
	})
	if err == nil {
		t.Fatalf("expected error for non-boolean hsts flag")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(config.LoadOptions{
		ConfigPath: filepath.Join(t.TempDir(), "absent.json"),
		Args:       []string{},
		Environ:    []string{},
	})
	if err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
