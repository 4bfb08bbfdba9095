package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSolve(t *testing.T) {
	c := registry()
	before := testutil.ToFloat64(c.solveTotal.WithLabelValues("full", "ok"))

	RecordSolve("full", "ok", 2*time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(c.solveTotal.WithLabelValues("full", "ok")))
}

func TestRecordPolicyCache(t *testing.T) {
	c := registry()
	hits := testutil.ToFloat64(c.policyCache.WithLabelValues("hit"))
	misses := testutil.ToFloat64(c.policyCache.WithLabelValues("miss"))

	RecordPolicyCache(true)
	RecordPolicyCache(false)
	RecordPolicyCache(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(c.policyCache.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(c.policyCache.WithLabelValues("miss")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordRequestMetrics(http.MethodPost, "/api/v1/schedules/solve", http.StatusOK, 10*time.Millisecond)
	AddAssignmentsPersisted(14)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "rota_http_requests_total")
	assert.Contains(t, body, "rota_assignments_persisted_total")
}
