// Package shared holds the response helpers common to all HTTP handlers:
// one JSON error envelope and one status mapping for coded domain errors.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "cradle/pkg/domain-errors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes payload with the given status. Encoding failures are
// ignored; the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// WriteError translates a domain error into the JSON error envelope. Only
// the outermost coded message is exposed; wrapped causes stay server-side.
// Uncoded errors become a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if errors.As(err, &de) {
		WriteJSON(w, StatusFor(de.Code), errorBody{
			Error:            string(de.Code),
			ErrorDescription: de.Message,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, errorBody{
		Error:            string(dErrors.CodeInternal),
		ErrorDescription: "internal error",
	})
}

// StatusFor maps a domain error code to its HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput, dErrors.CodeValidation, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
