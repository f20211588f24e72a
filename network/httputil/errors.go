// Package httputil provides the JSON request and response helpers shared
// by every HTTP surface of the coordinator.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorJson is the wire form of a rejected request. Code carries the
// HTTP status and stays out of the body.
type ErrorJson struct {
	Err    string `json:"error"`
	Detail string `json:"detail,omitempty"`
	Code   int    `json:"-"`
}

// WriteError renders a structured rejection.
func WriteError(w http.ResponseWriter, errJson *ErrorJson) {
	code := errJson.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(errJson); err != nil {
		log.WithError(err).Error("Could not write error response")
	}
}

// HandleError renders a rejection from its parts.
func HandleError(w http.ResponseWriter, code, detail string, status int) {
	WriteError(w, &ErrorJson{Err: code, Detail: detail, Code: status})
}
