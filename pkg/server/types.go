package server

import (
	"encoding/json"
	"net/http"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/dispatch"
)

// Error codes returned in ErrorResponse.Code
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeUnknownTool    = "UNKNOWN_TOOL"
	ErrCodeToolFailed     = "TOOL_FAILED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response except tool failures,
// which return the dispatch.Result.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse returned by GET /healthz
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	Tools          int    `json:"tools"`
}

// ToolsResponse returned by GET /tools
type ToolsResponse struct {
	Tools []dispatch.Info `json:"tools"`
}

// SessionsResponse returned by GET /sessions
type SessionsResponse struct {
	Count    int                   `json:"count"`
	Sessions []session.Description `json:"sessions"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
