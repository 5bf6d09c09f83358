package api

import (
	"encoding/json"
	"net/http"
)

// Error codes in error responses.
const (
	codeBadRequest  = "bad_request"
	codeInvalid     = "validation_error"
	codeUnavailable = "unavailable"
	codeInternal    = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	// The client may already be gone; nothing useful to do with the error.
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Status: status, Code: code, Message: msg})
}
