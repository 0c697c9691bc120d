package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesgap/density/processing"
)

func TestObserveArea(t *testing.T) {
	m := New()
	m.ObserveArea(processing.Result{Code: "E02003491"}, 10*time.Millisecond)
	m.ObserveArea(processing.Result{Code: "E02003492", Cached: true}, time.Millisecond)
	m.ObserveArea(processing.Result{Code: "E02003493", Cached: true}, time.Millisecond)
	m.ObserveArea(processing.Result{Code: "E02003494", Err: errors.New("no boundary")}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.areas.WithLabelValues(StatusComputed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.areas.WithLabelValues(StatusCached)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.areas.WithLabelValues(StatusFailed)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetNewHomes(1234.5)
	m.ObserveRequest("/api/areas", http.StatusOK)

	server := httptest.NewServer(m.Handler())
	defer server.Close()
	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "density_new_homes 1234.5")
	assert.Contains(t, string(body), `density_http_requests_total{code="200",route="/api/areas"} 1`)
}
