package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()
	m.CountBid(OutcomeAccepted)
	m.CountBid(OutcomeAccepted)
	m.CountBid(OutcomeTooLow)
	m.CountReconciliation()
	m.ObserveCommit(3 * time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.bids.WithLabelValues(OutcomeAccepted)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.bids.WithLabelValues(OutcomeTooLow)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reconciliations))
}

func TestMetrics_NilReceiver(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.CountBid(OutcomeAccepted)
		m.CountReconciliation()
		m.ObserveCommit(time.Second)
	})
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	t.Parallel()

	gin.SetMode(gin.TestMode)
	m := New()
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/items/:item_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/items/:item_id", "200")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "auction_http_requests_total"))
	require.True(t, strings.Contains(w.Body.String(), "go_goroutines"), "runtime collector is registered")
}
