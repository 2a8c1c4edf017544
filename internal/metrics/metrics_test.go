package metrics

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samdemo/samrelay/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStat(t *testing.T) {
	t.Parallel()

	s := NewStat()
	s.Telemetry.Inc()
	s.Telemetry.Inc()
	s.Commands.WithLabelValues("on").Inc()
	s.Overflows.WithLabelValues("node").Inc()
	s.Heater.Set(1)
	s.ErrorFunc(fmt.Errorf("x"))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.Telemetry))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Commands.WithLabelValues("on")))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.Commands.WithLabelValues("off")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Heater))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Errors))

	// independent registries, no global state between instances
	s2 := NewStat()
	assert.Equal(t, 0.0, testutil.ToFloat64(s2.Telemetry))
}

func TestHandler(t *testing.T) {
	t.Parallel()

	s := NewStat()
	s.Dropped.Inc()
	h := promhttp.HandlerFor(s.Registry(), promhttp.HandlerOpts{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "samrelay_transport_dropped_total 1"), body)
}

func TestServeEmptyListen(t *testing.T) {
	t.Parallel()

	_, err := NewStat().Serve(log2.NewTest(t, log2.LDebug), "")
	require.Error(t, err)
}
