package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/application"
	"gitlab.com/arbiterhq/api/fleet-mod-service/internal/domain"
)

// ModerationRequest is the payload for /admin/moderation/{action}.
type ModerationRequest struct {
	// Target is "@username", a positive participant id, or a negative
	// channel-persona id.
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
	// Minutes applies to the silence action only; zero means the default
	// duration.
	Minutes int `json:"minutes,omitempty"`
}

var validActions = map[domain.Action]bool{
	domain.ActionExclude: true,
	domain.ActionRestore: true,
	domain.ActionSilence: true,
	domain.ActionExpel:   true,
}

// maxReportedFailedScopes caps the failed-scope titles in the response body.
// The full list still goes to the audit stream.
const maxReportedFailedScopes = 3

func truncateTitles(titles []string) []string {
	if len(titles) <= maxReportedFailedScopes {
		return titles
	}
	out := make([]string, 0, maxReportedFailedScopes+1)
	out = append(out, titles[:maxReportedFailedScopes]...)
	return append(out, fmt.Sprintf("and %d more", len(titles)-maxReportedFailedScopes))
}

// ModerationActionHandler applies one fleet action. The action name comes
// from the {action} path segment.
func ModerationActionHandler(svc *application.ModerationService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		action := domain.Action(r.PathValue("action"))
		if !validActions[action] {
			domain.NewErrorResponse(domain.ErrBadRequest, "Unknown action", "Valid actions: exclude, restore, silence, expel.").WriteJSON(w, http.StatusBadRequest)
			return
		}

		var req ModerationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn(r.Context(), "Failed to decode moderation payload", "error", err.Error())
			domain.NewErrorResponse(domain.ErrBadRequest, "Invalid request payload", err.Error()).WriteJSON(w, http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		result, err := svc.Apply(r.Context(), action, req.Target, req.Reason, time.Duration(req.Minutes)*time.Minute)
		if err != nil {
			writeTargetError(w, r, logger, err, req.Target)
			return
		}

		result.Outcome.FailedScopeTitles = truncateTitles(result.Outcome.FailedScopeTitles)
		writeJSON(w, r, logger, http.StatusOK, result)
	}
}

// ResolveHandler resolves a target reference without acting on it.
func ResolveHandler(svc *application.ModerationService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("target")
		ident, err := svc.ResolveTarget(r.Context(), target)
		if err != nil {
			writeTargetError(w, r, logger, err, target)
			return
		}
		writeJSON(w, r, logger, http.StatusOK, struct {
			domain.Identity
			Display string `json:"display"`
		}{Identity: ident, Display: ident.DisplayName()})
	}
}

// CacheRefreshHandler rebuilds the scope cache.
func CacheRefreshHandler(svc *application.ModerationService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count := svc.RefreshScopes(r.Context())
		writeJSON(w, r, logger, http.StatusOK, struct {
			Scopes int `json:"scopes"`
		}{Scopes: count})
	}
}

// CacheStatusHandler reports the scope cache state.
func CacheStatusHandler(svc *application.ModerationService, logger domain.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, logger, http.StatusOK, svc.Status())
	}
}

func writeTargetError(w http.ResponseWriter, r *http.Request, logger domain.Logger, err error, target string) {
	switch {
	case errors.Is(err, domain.ErrInvalidTarget):
		logger.Warn(r.Context(), "Malformed target reference", "target", target)
		domain.NewErrorResponse(domain.ErrBadRequest, "Invalid target", "Use @username, a positive participant id, or a negative channel id.").WriteJSON(w, http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		logger.Info(r.Context(), "Target not locatable", "target", target)
		domain.NewErrorResponse(domain.ErrTargetUnknown, "Target not locatable", "The id was not found in any administered scope. Use @username or make sure a scope is shared with the target.").WriteJSON(w, http.StatusNotFound)
	default:
		logger.Error(r.Context(), "Moderation request failed", "target", target, "error", err.Error())
		domain.NewErrorResponse(domain.ErrInternal, "Internal error", err.Error()).WriteJSON(w, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger domain.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error(r.Context(), "Failed to encode response", "error", err.Error())
	}
}
