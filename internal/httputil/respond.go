// Package httputil provides the JSON request/response helpers shared by all
// HTTP handlers, plus a small authenticated client for driving the API from
// tools and tests.
package httputil

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/skydeck-host/skydeck/internal/errors"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error writes err as a JSON error response. Service errors carry their own
// status and stable code; anything else becomes an opaque 500.
func Error(w http.ResponseWriter, err error) {
	if serr := errors.GetServiceError(err); serr != nil {
		WriteJSON(w, serr.HTTPStatus, errorBody{
			Error:   serr.Message,
			Code:    string(serr.Code),
			Details: serr.Details,
		})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, errorBody{
		Error: "internal server error",
		Code:  string(errors.CodeInternal),
	})
}

// BadRequest writes a 400 with the given message.
func BadRequest(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, errorBody{Error: message, Code: string(errors.CodeValidation)})
}

// NotFound writes a 404 with the given message.
func NotFound(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusNotFound, errorBody{Error: message, Code: string(errors.CodeNotFound)})
}

// Unauthorized writes a 401 with the given message.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusUnauthorized, errorBody{Error: message, Code: string(errors.CodeUnauthorized)})
}

// InternalError writes a 500 with the given message.
func InternalError(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusInternalServerError, errorBody{Error: message, Code: string(errors.CodeInternal)})
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
// On failure it writes a 400 response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		BadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// ClientIP extracts the originating client address, preferring proxy headers
// over the socket peer.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
