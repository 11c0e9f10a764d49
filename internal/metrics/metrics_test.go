package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackQueueOperation(t *testing.T) {
	before := testutil.ToFloat64(queueOperations.WithLabelValues("join", "already_queued"))
	TrackQueueOperation("join", "already_queued")
	TrackQueueOperation("join", "already_queued")
	after := testutil.ToFloat64(queueOperations.WithLabelValues("join", "already_queued"))
	assert.Equal(t, before+2, after)
}

func TestPeopleWaitingReadsOnScrape(t *testing.T) {
	counts := map[string]int{"q1": 3, "q2": 0}
	collector := NewPeopleWaitingCollector(func(ctx context.Context) (map[string]int, error) {
		return counts, nil
	})

	want := `
# HELP queue_people_waiting People currently waiting per queue
# TYPE queue_people_waiting gauge
queue_people_waiting{queue_id="q1"} 3
queue_people_waiting{queue_id="q2"} 0
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(want)))

	delete(counts, "q2")
	assert.Equal(t, 1, testutil.CollectAndCount(collector))
}

func TestPeopleWaitingReportsCountError(t *testing.T) {
	collector := NewPeopleWaitingCollector(func(ctx context.Context) (map[string]int, error) {
		return nil, errors.New("store unavailable")
	})
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(collector))
	_, err := registry.Gather()
	assert.Error(t, err)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveRequest(http.MethodGet, "/api/queues", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "queue_service_http_requests_total"))
}
