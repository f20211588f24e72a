package prometheus

import (
	"fmt"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/karstnet/karst/runtime"
	"github.com/karstnet/karst/testing/assert"
	"github.com/karstnet/karst/testing/require"
	"github.com/sirupsen/logrus"
)

func counterValue(t *testing.T, metrics []string, level logrus.Level, prefix string) int {
	// Samples are exposed one per line:
	//   karst_log_entries_total{level="error",prefix="ingest"} 1
	pattern := fmt.Sprintf("karst_log_entries_total{level=%q,prefix=%q}", level.String(), prefix)
	for _, line := range metrics {
		if !strings.HasPrefix(line, pattern) {
			continue
		}
		parts := strings.Split(line, " ")
		v, err := strconv.ParseFloat(parts[len(parts)-1], 64)
		require.NoError(t, err)
		return int(v)
	}
	t.Fatalf("no sample found for %s", pattern)
	return 0
}

func TestLogrusCollector_CountsByLevelAndPrefix(t *testing.T) {
	s := NewService("127.0.0.1:0", runtime.NewServiceRegistry())
	srv := httptest.NewServer(s.server.Handler)
	defer srv.Close()

	logger := logrus.New()
	logger.AddHook(NewLogrusCollector())

	sub := logger.WithField("prefix", "collectortest")
	sub.Info("first")
	sub.Info("second")
	sub.Warn("third")
	sub.Error("fourth")
	logger.Info("unprefixed")

	_, body := getBody(t, srv.URL, "/metrics", "")
	metrics := strings.Split(body, "\n")

	assert.Equal(t, 2, counterValue(t, metrics, logrus.InfoLevel, "collectortest"))
	assert.Equal(t, 1, counterValue(t, metrics, logrus.WarnLevel, "collectortest"))
	assert.Equal(t, 1, counterValue(t, metrics, logrus.ErrorLevel, "collectortest"))
	assert.Equal(t, 1, counterValue(t, metrics, logrus.InfoLevel, defaultPrefix))
}

func TestLogrusCollector_RejectsNonStringPrefix(t *testing.T) {
	hook := NewLogrusCollector()
	entry := &logrus.Entry{Data: logrus.Fields{prefixKey: 42}, Level: logrus.InfoLevel}
	require.ErrorContains(t, "prefix is not a string", hook.Fire(entry))
}
