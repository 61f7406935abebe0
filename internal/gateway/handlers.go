package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/scaroll/pgclosets-store-sub011/internal/security"
)

const maxControlBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

type csrfTokenResponse struct {
	Token       string `json:"token"`
	ExpiresInMs int64  `json:"expiresInMs"`
}

type blockRequest struct {
	IP         string `json:"ip"`
	DurationMs int64  `json:"durationMs"`
}

func (app *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (app *Application) handleReady(w http.ResponseWriter, r *http.Request) {
	if !app.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleCSRFToken issues a token bound to the caller's session cookie.
// The storefront fetches one before rendering a mutating form.
func (app *Application) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	session, err := r.Cookie("session-token")
	if err != nil || session.Value == "" {
		writeError(w, http.StatusBadRequest, "session cookie is required")
		return
	}
	token, err := app.Pipeline.CSRF().Issue(session.Value)
	if err != nil {
		app.logger.Error("csrf token issuance failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "csrf-token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(app.Config.CSRFTokenExpiry / time.Second),
		Secure:   app.Config.Production(),
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, csrfTokenResponse{
		Token:       token,
		ExpiresInMs: app.Config.CSRFTokenExpiry.Milliseconds(),
	})
}

func (app *Application) handleBlocklist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Pipeline.IPBlocks().Snapshot())
}

func (app *Application) handleBlockIP(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IP == "" {
		writeError(w, http.StatusBadRequest, "ip is required")
		return
	}
	duration := time.Duration(req.DurationMs) * time.Millisecond
	if duration <= 0 {
		duration = app.Config.SuspiciousBlock
	}
	app.Pipeline.IPBlocks().Block(req.IP, duration)
	app.logger.Warn("ip blocked by operator", map[string]any{
		"ip":       req.IP,
		"duration": duration.String(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (app *Application) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.Pipeline.Tracker().Snapshot())
}

// handleLoad feeds origin load figures into the adaptive limiter so
// limits tighten while the origin struggles.
func (app *Application) handleLoad(w http.ResponseWriter, r *http.Request) {
	var metrics security.LoadMetrics
	if err := decodeJSON(r, &metrics); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	app.Adaptive.Adjust(metrics)
	writeJSON(w, http.StatusOK, map[string]float64{"multiplier": app.Adaptive.Multiplier()})
}

func (app *Application) handleLoadReset(w http.ResponseWriter, r *http.Request) {
	app.Adaptive.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// requireAdmin gates the admin surface behind the bearer token when auth
// is enabled.
func (app *Application) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.Config.EnableAuth {
			expected := "Bearer " + app.Config.AdminToken
			if r.Header.Get("Authorization") != expected {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxControlBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
