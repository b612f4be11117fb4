package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/gatekeepersdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler reports 503 while the database or the cache cannot be
// reached. Failure causes are logged, not returned.
func ReadyzHandler(startTime time.Time, version string, db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{}
		overallStatus := "ok"
		statusCode := http.StatusOK

		for name, dep := range map[string]pinger{"database": db, "cache": c} {
			if err := dep.Ping(ctx); err != nil {
				slogx.FromContext(ctx).Warn("readiness check failed", "check", name, slogx.Err(err))
				checks[name] = "error"
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		httpx.WriteJSON(w, statusCode, gatekeepersdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
