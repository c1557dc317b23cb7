package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketrow/stallgate/pkg/policy"
)

func TestMetrics_RecordDecision(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDecision(policy.CollectionStockItems, policy.OperationUpdate, true, "")
	m.RecordDecision(policy.CollectionStockItems, policy.OperationUpdate, false, policy.ReasonFieldNotAllowed)
	m.RecordDecision(policy.CollectionStockItems, policy.OperationUpdate, false, policy.ReasonFieldNotAllowed)

	allow := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("stockItems", "update", "allow"))
	deny := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("stockItems", "update", "deny"))
	assert.Equal(t, float64(1), allow)
	assert.Equal(t, float64(2), deny)

	denials := testutil.ToFloat64(m.DenialsTotal.WithLabelValues("stockItems", "update", "FIELD_NOT_ALLOWED"))
	assert.Equal(t, float64(2), denials)
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordHTTPRequest("GET", "/api/v1/sites", 200, 15*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/sites", 200, 5*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/sites", 403, time.Millisecond)

	ok := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/sites", "200"))
	denied := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/sites", "403"))
	assert.Equal(t, float64(2), ok)
	assert.Equal(t, float64(1), denied)
}

func TestMetrics_HandlerServesRegistry(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordDecision(policy.CollectionSites, policy.OperationRead, true, "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "stallgate_decisions_total")
}

func TestMetrics_DoubleRegisterPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewMetrics(registry)
	assert.Panics(t, func() { NewMetrics(registry) })
}
