// Package handlers implements the HTTP surface of the dashboard backend.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"roversa-dashboard/internal/middleware"
	"roversa-dashboard/internal/models"
	"roversa-dashboard/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: middleware.GetRequestID(r.Context()),
		},
	}
}

func handleSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *session.ConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorRespWithFields(
			"ACTIVE_SESSION_CONFLICT",
			"Another session is already active. Confirm to pause it.",
			map[string]string{
				"active_id":   conflict.ActiveID,
				"active_name": conflict.ActiveName,
			}, r))
	case errors.Is(err, session.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Session not found", r))
	case errors.Is(err, session.ErrSessionEnded):
		writeJSON(w, http.StatusConflict, errorResp("SESSION_ENDED", "Session has ended", r))
	case errors.Is(err, session.ErrRobotNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Robot not found", r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Something went wrong", r))
	}
}
