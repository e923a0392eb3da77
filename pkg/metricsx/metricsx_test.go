package metricsx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/estatevault/portal/pkg/metricsx"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metricsx.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestInstrument(t *testing.T) {
	m := metricsx.New()

	h := m.Instrument("POST /v1/auth/login", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))

	require.Contains(t, scrape(t, m),
		`portal_http_requests_total{method="POST",route="POST /v1/auth/login",status="401"} 2`)
}

func TestHandlerExposesPortalMetrics(t *testing.T) {
	m := metricsx.New()
	m.Logins.WithLabelValues("success").Inc()
	m.Connections.Set(3)

	body := scrape(t, m)
	require.Contains(t, body, `portal_logins_total{outcome="success"} 1`)
	require.Contains(t, body, "portal_realtime_connections 3")
	require.Contains(t, body, "go_goroutines")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := metricsx.New(), metricsx.New()
	a.Messages.Inc()

	require.Contains(t, scrape(t, a), "portal_messages_submitted_total 1")
	require.Contains(t, scrape(t, b), "portal_messages_submitted_total 0")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metricsx.Metrics
	m.ObserveLogin("failed")
	m.ObserveTwoFactor("setup", "ok")
	m.ObserveRefresh("ok")
	m.ObserveMessage()

	next := http.NotFoundHandler()
	rec := httptest.NewRecorder()
	m.Instrument("GET /x", next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserveHelpers(t *testing.T) {
	m := metricsx.New()
	m.ObserveLogin("2fa_required")
	m.ObserveTwoFactor("confirm", "invalid_code")
	m.ObserveRefresh("ok")
	m.ObserveMessage()

	body := scrape(t, m)
	require.Contains(t, body, `portal_logins_total{outcome="2fa_required"} 1`)
	require.Contains(t, body, `portal_two_factor_events_total{operation="confirm",result="invalid_code"} 1`)
	require.Contains(t, body, `portal_token_refreshes_total{result="ok"} 1`)
	require.Contains(t, body, "portal_messages_submitted_total 1")
}
