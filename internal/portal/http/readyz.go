package http

import (
	"context"
	"net/http"
	"time"

	"github.com/estatevault/portal/internal/portal/realtime"
	"github.com/estatevault/portal/pkg/httpx"
	"github.com/estatevault/portal/pkg/portalsdk"
)

// Pinger is anything readiness can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe checking the database and, when configured separately, the login challenge store.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	portalsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	portalsdk.HealthResponse	"service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, db, challenges Pinger, reg *realtime.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := &portalsdk.HealthChecks{Database: "ok"}
		status, code := "ok", http.StatusOK

		if err := db.Ping(ctx); err != nil {
			checks.Database = "error: " + err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if challenges != nil {
			checks.Challenges = "ok"
			if err := challenges.Ping(ctx); err != nil {
				checks.Challenges = "error: " + err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}

		resp := portalsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		if reg != nil {
			n := reg.Len()
			resp.Connections = &n
		}
		httpx.WriteJSON(w, code, resp)
	}
}
