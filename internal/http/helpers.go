package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"finsight/internal/auth"
	"finsight/internal/core"
	"finsight/internal/insights"
	"finsight/internal/log"
	"finsight/internal/objstore"
	"finsight/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, core.APIError{Message: msg, Details: details})
}

// errorStatus maps a domain error to its HTTP status and public message.
func errorStatus(err error) (int, string) {
	switch {
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity, "invalid input"
	case errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, objstore.ErrInvalidPath), errors.Is(err, objstore.ErrForeignURL):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrExportDisabled), errors.Is(err, insights.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError logs unexpected failures and hides their details from the
// caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, nil)
		writeAPIError(w, status, msg, "something went wrong, please try again")
		return
	}
	writeAPIError(w, status, msg, err.Error())
}

// userID returns the authenticated caller. Routes are wrapped by
// auth.Middleware, so a miss here is a wiring bug.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	uid, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing auth token")
		return uuid.Nil, false
	}
	return uid, true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid id", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
