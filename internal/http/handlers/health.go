package handlers

import (
	"context"
	"net/http"
	"time"
)

const pingTimeout = 2 * time.Second

// Health reports liveness, and database reachability when a Ping is wired.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("http: health ping failed")
			body["status"] = "degraded"
			body["database"] = "unreachable"
			a.json(w, http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	a.json(w, http.StatusOK, body)
}
