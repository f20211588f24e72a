// Package backup exposes a webhook that snapshots the coordinator database
// on demand.
package backup

import (
	"context"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "backup")

// Exporter writes a point-in-time copy of the event store to the output
// directory.
type Exporter interface {
	Backup(ctx context.Context, outputDir string) error
}

// Handler returns a handler that triggers a database backup on every
// request. It is mounted on the monitoring mux, never the public API.
func Handler(bk Exporter, outputDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Creating database backup from HTTP webhook")

		if err := bk.Backup(r.Context(), outputDir); err != nil {
			log.WithError(err).Error("Failed to create backup")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := io.WriteString(w, "OK"); err != nil {
			log.WithError(err).Error("Failed to write response")
		}
	}
}
