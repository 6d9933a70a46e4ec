package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"prodigymun/internal/core"
	"prodigymun/pkg/domain"
)

// Error kinds reported by the HTTP layer in addition to the domain kinds.
const (
	kindBadRequest   = "bad_request"
	kindUnauthorized = "unauthorized"
	kindUnavailable  = "unavailable"
)

const (
	msgServerError       = "Server error"
	msgInvalidBody       = "Invalid request body"
	msgInvalidCreate     = "Invalid registration data"
	msgDuplicate         = "Student is already registered for MUN"
	msgNotFound          = "Registration not found"
	msgInvalidLogin      = "Invalid credentials"
	msgLoginOK           = "Login successful"
	msgArchiveDisabled   = "Export archive storage is not configured"
	msgAuthRequired      = "Authentication required"
	msgRegistrationAdded = "Registration successful"
	msgDeleted           = "Registration deleted"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, payload envelope) {
	if payload == nil {
		payload = envelope{}
	}
	payload["success"] = true
	writeJSON(w, status, payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, envelope{"success": false, "kind": kind, "message": message})
}

// writeServiceError maps a service error onto a status code and envelope.
// validationMessage overrides the message for validation failures.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, validationMessage string) {
	if errors.Is(err, core.ErrArchiveDisabled) {
		writeError(w, http.StatusServiceUnavailable, kindUnavailable, msgArchiveDisabled)
		return
	}
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindValidation:
		var verr domain.ValidationError
		errors.As(err, &verr)
		message := validationMessage
		if message == "" {
			message = violationSummary(verr)
		}
		writeJSON(w, http.StatusBadRequest, envelope{
			"success": false,
			"kind":    string(kind),
			"message": message,
			"errors":  verr.Violations,
		})
	case domain.KindDuplicate:
		writeError(w, http.StatusBadRequest, string(kind), msgDuplicate)
	case domain.KindNotFound:
		writeError(w, http.StatusNotFound, string(kind), msgNotFound)
	default:
		h.logger.LogAttrs(r.Context(), slog.LevelError, "request failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, string(kind), msgServerError)
	}
}

func violationSummary(verr domain.ValidationError) string {
	if len(verr.Violations) == 0 {
		return "Invalid input"
	}
	msgs := make([]string, 0, len(verr.Violations))
	for _, v := range verr.Violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}
