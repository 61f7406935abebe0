// Package config provides environment config overrides.
package config

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	values := envMap(environ)
	if value, ok := values["SECGATE_LISTEN_ADDR"]; ok {
		cfg.ListenAddr = value
	}
	if value, ok := values["SECGATE_UPSTREAM_URL"]; ok {
		cfg.UpstreamURL = value
	}
	if value, ok := values["SECGATE_ENVIRONMENT"]; ok {
		cfg.Environment = value
	}
	if value, ok := values["SECGATE_RATE_LIMIT_REQUESTS"]; ok {
		parsed, err := parseIntEnv("SECGATE_RATE_LIMIT_REQUESTS", value)
		if err != nil {
			return err
		}
		cfg.RateLimitRequests = parsed
	}
	if value, ok := values["SECGATE_RATE_LIMIT_WINDOW_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_RATE_LIMIT_WINDOW_MS", value)
		if err != nil {
			return err
		}
		cfg.RateLimitWindow = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_BLOCK_DURATION_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_BLOCK_DURATION_MS", value)
		if err != nil {
			return err
		}
		cfg.BlockDuration = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_BURST_LIMIT"]; ok {
		parsed, err := parseIntEnv("SECGATE_BURST_LIMIT", value)
		if err != nil {
			return err
		}
		cfg.BurstLimit = parsed
	}
	if value, ok := values["SECGATE_SUSTAINED_THRESHOLD"]; ok {
		parsed, err := parseIntEnv("SECGATE_SUSTAINED_THRESHOLD", value)
		if err != nil {
			return err
		}
		cfg.SustainedThreshold = parsed
	}
	if value, ok := values["SECGATE_DDOS_WINDOW_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_DDOS_WINDOW_MS", value)
		if err != nil {
			return err
		}
		cfg.DDoSWindow = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_DDOS_BLOCK_DURATION_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_DDOS_BLOCK_DURATION_MS", value)
		if err != nil {
			return err
		}
		cfg.DDoSBlockDuration = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_CSRF_TOKEN_EXPIRY_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_CSRF_TOKEN_EXPIRY_MS", value)
		if err != nil {
			return err
		}
		cfg.CSRFTokenExpiry = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_CSRF_SAFE_PREFIXES"]; ok {
		cfg.CSRFSafePrefixes = splitListEnv(value)
	}
	if value, ok := values["SECGATE_SUSPICIOUS_THRESHOLD"]; ok {
		parsed, err := parseIntEnv("SECGATE_SUSPICIOUS_THRESHOLD", value)
		if err != nil {
			return err
		}
		cfg.SuspiciousThreshold = parsed
	}
	if value, ok := values["SECGATE_SUSPICIOUS_BLOCK_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_SUSPICIOUS_BLOCK_MS", value)
		if err != nil {
			return err
		}
		cfg.SuspiciousBlock = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_MAX_BODY_BYTES"]; ok {
		parsed, err := parseIntEnv("SECGATE_MAX_BODY_BYTES", value)
		if err != nil {
			return err
		}
		cfg.MaxBodyBytes = parsed
	}
	if value, ok := values["SECGATE_MAX_FIELD_LENGTH"]; ok {
		parsed, err := parseIntEnv("SECGATE_MAX_FIELD_LENGTH", value)
		if err != nil {
			return err
		}
		cfg.MaxFieldLength = int(parsed)
	}
	if value, ok := values["SECGATE_ENABLE_HSTS"]; ok {
		parsed, err := parseBoolEnv("SECGATE_ENABLE_HSTS", value)
		if err != nil {
			return err
		}
		cfg.EnableHSTS = parsed
	}
	if value, ok := values["SECGATE_CSP"]; ok {
		cfg.ContentSecurityPolicy = value
	}
	if value, ok := values["SECGATE_FRAME_OPTIONS"]; ok {
		cfg.FrameOptions = value
	}
	if value, ok := values["SECGATE_REFERRER_POLICY"]; ok {
		cfg.ReferrerPolicy = value
	}
	if value, ok := values["SECGATE_PERMISSIONS_POLICY"]; ok {
		cfg.PermissionsPolicy = value
	}
	if value, ok := values["SECGATE_AUDIT_ENDPOINT"]; ok {
		cfg.AuditEndpoint = value
	}
	if value, ok := values["SECGATE_AUDIT_LEVEL"]; ok {
		cfg.AuditLevel = value
	}
	if value, ok := values["SECGATE_AUDIT_EMIT_PER_SECOND"]; ok {
		parsed, err := parseFloatEnv("SECGATE_AUDIT_EMIT_PER_SECOND", value)
		if err != nil {
			return err
		}
		cfg.AuditEmitPerSecond = parsed
	}
	if value, ok := values["SECGATE_AUDIT_EMIT_BURST"]; ok {
		parsed, err := parseIntEnv("SECGATE_AUDIT_EMIT_BURST", value)
		if err != nil {
			return err
		}
		cfg.AuditEmitBurst = int(parsed)
	}
	if value, ok := values["SECGATE_ENABLE_AUTH"]; ok {
		parsed, err := parseBoolEnv("SECGATE_ENABLE_AUTH", value)
		if err != nil {
			return err
		}
		cfg.EnableAuth = parsed
	}
	if value, ok := values["SECGATE_ADMIN_TOKEN"]; ok {
		cfg.AdminToken = value
	}
	if value, ok := values["SECGATE_SWEEP_INTERVAL_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_SWEEP_INTERVAL_MS", value)
		if err != nil {
			return err
		}
		cfg.SweepInterval = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_HTTP_READ_TIMEOUT_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_HTTP_READ_TIMEOUT_MS", value)
		if err != nil {
			return err
		}
		cfg.HTTPReadTimeout = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_HTTP_WRITE_TIMEOUT_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_HTTP_WRITE_TIMEOUT_MS", value)
		if err != nil {
			return err
		}
		cfg.HTTPWriteTimeout = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_HTTP_IDLE_TIMEOUT_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_HTTP_IDLE_TIMEOUT_MS", value)
		if err != nil {
			return err
		}
		cfg.HTTPIdleTimeout = time.Duration(parsed) * time.Millisecond
	}
	if value, ok := values["SECGATE_DRAIN_TIMEOUT_MS"]; ok {
		parsed, err := parseIntEnv("SECGATE_DRAIN_TIMEOUT_MS", value)
		if err != nil {
			return err
		}
		cfg.DrainTimeout = time.Duration(parsed) * time.Millisecond
	}
	return nil
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string)
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = parts[1]
	}
	return values
}

func parseBoolEnv(name, value string) (bool, error) {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseIntEnv(name, value string) (int64, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func parseFloatEnv(name, value string) (float64, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, errors.New("invalid env value for " + name)
	}
	return parsed, nil
}

func splitListEnv(value string) []string {
	parts := strings.Split(value, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	return list
}
