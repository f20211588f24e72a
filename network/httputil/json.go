package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "httputil")

// maxRequestBody bounds request bodies read by DecodeJson. Event bodies
// cap at 64 KiB on the wire, everything else is far smaller.
const maxRequestBody = 1 << 20

// WriteJson renders v with status 200.
func WriteJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response")
	}
}

// DecodeJson unmarshals a bounded request body into v.
func DecodeJson(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
