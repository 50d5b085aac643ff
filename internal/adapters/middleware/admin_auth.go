package middleware

import (
	"crypto/subtle"
	"net/http"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/config"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/adapters/metrics"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
	"gitlab.com/arbiterhq/api/fleet-mod-service/pkg/crypto"
)

const apiKeyHeaderName = "X-API-Key"

// AdminAPIKeyAuthMiddleware creates a middleware guarding the admin API.
// It checks the X-API-Key header against the configured admin key using a
// constant-time comparison. Rejected keys are logged only as fingerprints.
func AdminAPIKeyAuthMiddleware(cfgProvider config.Provider, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg := cfgProvider.Get()
			if cfg == nil || cfg.Auth.AdminAPIKey == "" {
				logger.Error(r.Context(), "Admin auth failed: AdminAPIKey not configured", "path", r.URL.Path)
				metrics.IncrementAuthFailure("not_configured")
				domain.NewErrorResponse(domain.ErrInternal, "Server configuration error", "Admin auth cannot be performed.").WriteJSON(w, http.StatusInternalServerError)
				return
			}

			apiKey := r.Header.Get(apiKeyHeaderName)
			if apiKey == "" {
				logger.Warn(r.Context(), "Admin auth failed: API key missing", "path", r.URL.Path)
				metrics.IncrementAuthFailure("missing")
				domain.NewErrorResponse(domain.ErrInvalidAPIKey, "Admin API key is required", "Provide the admin API key in the X-API-Key header.").WriteJSON(w, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(cfg.Auth.AdminAPIKey)) != 1 {
				logger.Warn(r.Context(), "Admin auth failed: invalid API key",
					"path", r.URL.Path,
					"key_fingerprint", crypto.Sha256Hex(apiKey)[:8],
				)
				metrics.IncrementAuthFailure("invalid")
				domain.NewErrorResponse(domain.ErrInvalidAPIKey, "Invalid admin API key", "The provided admin API key is not valid.").WriteJSON(w, http.StatusForbidden)
				return
			}

			metrics.IncrementAuthSuccess()
			logger.Debug(r.Context(), "Admin API key authentication successful", "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
