package prometheus

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/golang/gddo/httputil"
)

const (
	contentTypePlainText = "text/plain"
	contentTypeJSON      = "application/json"
)

// serviceStatus describes the health of a single registered service.
type serviceStatus struct {
	Name    string `json:"service"`
	Healthy bool   `json:"healthy"`
	Err     string `json:"error,omitempty"`
}

// negotiateContentType parses "Accept:" header and returns preferred content type string.
func negotiateContentType(r *http.Request) string {
	contentTypes := []string{
		contentTypePlainText,
		contentTypeJSON,
	}
	return httputil.NegotiateContentType(r, contentTypes, contentTypePlainText)
}

// writeStatuses is a content-type aware response writer for service statuses.
func writeStatuses(w http.ResponseWriter, r *http.Request, code int, statuses []serviceStatus) error {
	switch negotiateContentType(r) {
	case contentTypeJSON:
		w.Header().Set("Content-Type", contentTypeJSON)
		w.WriteHeader(code)
		return json.NewEncoder(w).Encode(statuses)
	default:
		w.WriteHeader(code)
		for _, st := range statuses {
			line := fmt.Sprintf("%s: OK\n", st.Name)
			if !st.Healthy {
				line = fmt.Sprintf("%s: ERROR %s\n", st.Name, st.Err)
			}
			if _, err := w.Write([]byte(line)); err != nil {
				return fmt.Errorf("could not write response body: %w", err)
			}
		}
	}
	return nil
}
