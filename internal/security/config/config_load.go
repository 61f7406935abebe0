package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"
)

// LoadOptions controls where Load reads configuration from. Zero values
// fall back to the process arguments and environment.
type LoadOptions struct {
	ConfigPath string
	Args       []string
	Environ    []string
}

// Load resolves configuration in ascending precedence: defaults, JSON
// file, environment, flags.
func Load(opts LoadOptions) (*Config, error) {
	cfg := DefaultConfig()

	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	fs := flag.NewFlagSet("secgate", flag.ContinueOnError)
	configPath := fs.String("config", opts.ConfigPath, "path to JSON config file")
	listenAddr := fs.String("listen", "", "listen address")
	upstream := fs.String("upstream", "", "upstream origin URL")
	environment := fs.String("env", "", "deployment environment")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := applyFile(cfg, *configPath); err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg, environ); err != nil {
		return nil, err
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *upstream != "" {
		cfg.UpstreamURL = *upstream
	}
	if *environment != "" {
		cfg.Environment = *environment
	}
	return cfg, nil
}

// fileConfig is the on-disk shape. Durations are milliseconds; absent
// fields keep their prior value.
type fileConfig struct {
	ListenAddr            *string           `json:"listenAddr"`
	UpstreamURL           *string           `json:"upstreamUrl"`
	Environment           *string           `json:"environment"`
	RateLimitRequests     *int64            `json:"rateLimitRequests"`
	RateLimitWindowMs     *int64            `json:"rateLimitWindowMs"`
	BlockDurationMs       *int64            `json:"blockDurationMs"`
	BurstLimit            *int64            `json:"burstLimit"`
	SustainedThreshold    *int64            `json:"sustainedThreshold"`
	DDoSWindowMs          *int64            `json:"ddosWindowMs"`
	DDoSBlockDurationMs   *int64            `json:"ddosBlockDurationMs"`
	CSRFTokenExpiryMs     *int64            `json:"csrfTokenExpiryMs"`
	CSRFSafePrefixes      []string          `json:"csrfSafePrefixes"`
	SuspiciousThreshold   *int64            `json:"suspiciousThreshold"`
	SuspiciousBlockMs     *int64            `json:"suspiciousBlockMs"`
	MaxBodyBytes          *int64            `json:"maxBodyBytes"`
	MaxFieldLength        *int              `json:"maxFieldLength"`
	RoutePresets          []fileRoutePreset `json:"routePresets"`
	EnableHSTS            *bool             `json:"enableHsts"`
	ContentSecurityPolicy *string           `json:"contentSecurityPolicy"`
	FrameOptions          *string           `json:"frameOptions"`
	ReferrerPolicy        *string           `json:"referrerPolicy"`
	PermissionsPolicy     *string           `json:"permissionsPolicy"`
	AuditEndpoint         *string           `json:"auditEndpoint"`
	AuditLevel            *string           `json:"auditLevel"`
	AuditEmitPerSecond    *float64          `json:"auditEmitPerSecond"`
	AuditEmitBurst        *int              `json:"auditEmitBurst"`
	EnableAuth            *bool             `json:"enableAuth"`
	AdminToken            *string           `json:"adminToken"`
	SweepIntervalMs       *int64            `json:"sweepIntervalMs"`
	HTTPReadTimeoutMs     *int64            `json:"httpReadTimeoutMs"`
	HTTPWriteTimeoutMs    *int64            `json:"httpWriteTimeoutMs"`
	HTTPIdleTimeoutMs     *int64            `json:"httpIdleTimeoutMs"`
	DrainTimeoutMs        *int64            `json:"drainTimeoutMs"`
}

type fileRoutePreset struct {
	Prefix      string `json:"prefix"`
	Name        string `json:"name"`
	WindowMs    int64  `json:"windowMs"`
	MaxRequests int64  `json:"maxRequests"`
}

func applyFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file fileConfig
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	setString(&cfg.ListenAddr, file.ListenAddr)
	setString(&cfg.UpstreamURL, file.UpstreamURL)
	setString(&cfg.Environment, file.Environment)
	setInt64(&cfg.RateLimitRequests, file.RateLimitRequests)
	setDuration(&cfg.RateLimitWindow, file.RateLimitWindowMs)
	setDuration(&cfg.BlockDuration, file.BlockDurationMs)
	setInt64(&cfg.BurstLimit, file.BurstLimit)
	setInt64(&cfg.SustainedThreshold, file.SustainedThreshold)
	setDuration(&cfg.DDoSWindow, file.DDoSWindowMs)
	setDuration(&cfg.DDoSBlockDuration, file.DDoSBlockDurationMs)
	setDuration(&cfg.CSRFTokenExpiry, file.CSRFTokenExpiryMs)
	if file.CSRFSafePrefixes != nil {
		cfg.CSRFSafePrefixes = file.CSRFSafePrefixes
	}
	setInt64(&cfg.SuspiciousThreshold, file.SuspiciousThreshold)
	setDuration(&cfg.SuspiciousBlock, file.SuspiciousBlockMs)
	setInt64(&cfg.MaxBodyBytes, file.MaxBodyBytes)
	if file.MaxFieldLength != nil {
		cfg.MaxFieldLength = *file.MaxFieldLength
	}
	if file.RoutePresets != nil {
		presets := make([]RoutePreset, 0, len(file.RoutePresets))
		for _, p := range file.RoutePresets {
			if p.Prefix == "" || p.MaxRequests <= 0 || p.WindowMs <= 0 {
				return fmt.Errorf("parse config file %s: route preset needs prefix, windowMs and maxRequests", path)
			}
			presets = append(presets, RoutePreset{
				Prefix:      p.Prefix,
				Name:        p.Name,
				Window:      time.Duration(p.WindowMs) * time.Millisecond,
				MaxRequests: p.MaxRequests,
			})
		}
		cfg.RoutePresets = presets
	}
	if file.EnableHSTS != nil {
		cfg.EnableHSTS = *file.EnableHSTS
	}
	setString(&cfg.ContentSecurityPolicy, file.ContentSecurityPolicy)
	setString(&cfg.FrameOptions, file.FrameOptions)
	setString(&cfg.ReferrerPolicy, file.ReferrerPolicy)
	setString(&cfg.PermissionsPolicy, file.PermissionsPolicy)
	setString(&cfg.AuditEndpoint, file.AuditEndpoint)
	setString(&cfg.AuditLevel, file.AuditLevel)
	if file.AuditEmitPerSecond != nil {
		cfg.AuditEmitPerSecond = *file.AuditEmitPerSecond
	}
	if file.AuditEmitBurst != nil {
		cfg.AuditEmitBurst = *file.AuditEmitBurst
	}
	if file.EnableAuth != nil {
		cfg.EnableAuth = *file.EnableAuth
	}
	setString(&cfg.AdminToken, file.AdminToken)
	setDuration(&cfg.SweepInterval, file.SweepIntervalMs)
	setDuration(&cfg.HTTPReadTimeout, file.HTTPReadTimeoutMs)
	setDuration(&cfg.HTTPWriteTimeout, file.HTTPWriteTimeoutMs)
	setDuration(&cfg.HTTPIdleTimeout, file.HTTPIdleTimeoutMs)
	setDuration(&cfg.DrainTimeout, file.DrainTimeoutMs)
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *int64) {
	if src != nil {
		*dst = time.Duration(*src) * time.Millisecond
	}
}
