package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jvs-project/syncbridge/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SessionBalance(t *testing.T) {
	r := metrics.NewRegistry()

	r.RecordSessionOpen()
	r.RecordSessionOpen()
	r.RecordSessionClose(nil)
	r.RecordSessionClose(errors.New("disconnect failed"))

	count, err := testutil.GatherAndCount(r.Gatherer(), "syncbridge_session_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per event label")

	body := scrape(t, r)
	assert.Contains(t, body, `syncbridge_session_events_total{event="open"} 2`)
	assert.Contains(t, body, `syncbridge_session_events_total{event="close"} 2`)
	assert.Contains(t, body, "syncbridge_sessions_open 0")
	assert.Contains(t, body, `syncbridge_teardown_failures_total{resource="session"} 1`)
}

func TestRegistry_StepsAndRuntime(t *testing.T) {
	r := metrics.NewRegistry()

	r.RecordStep("init", true)
	r.RecordStep("session", false)
	r.RecordRuntime("init", nil)
	r.RecordRuntime("release", errors.New("hung"))
	r.RecordSynchronize(false, 250*time.Millisecond)

	body := scrape(t, r)
	assert.Contains(t, body, `syncbridge_step_total{result="success",step="init"} 1`)
	assert.Contains(t, body, `syncbridge_step_total{result="failure",step="session"} 1`)
	assert.Contains(t, body, `syncbridge_runtime_events_total{event="release"} 1`)
	assert.Contains(t, body, `syncbridge_teardown_failures_total{resource="runtime"} 1`)
	assert.Contains(t, body, `syncbridge_synchronize_duration_seconds_count{result="failure"} 1`)
}

func TestDefault_IsSingleton(t *testing.T) {
	assert.Same(t, metrics.Default(), metrics.Default())
}

func scrape(t *testing.T, r *metrics.Registry) string {
	t.Helper()
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}
