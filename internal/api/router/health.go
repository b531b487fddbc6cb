package router

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/therapy-practice-api/internal/http/apiutil"
	"github.com/wolfman30/therapy-practice-api/pkg/logging"
)

type pinger interface {
	Ping(ctx context.Context) error
}

const healthTimeout = 2 * time.Second

// healthHandler reports "ok" when the database answers a ping. A nil pinger
// reports liveness only.
func healthHandler(db pinger, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				logger.Warn("health check: database unreachable", "error", err)
				apiutil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
