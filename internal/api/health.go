package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// health is a liveness probe. Always 200 while the process serves.
func health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness reports whether the server can do useful work: the database must
// answer a bounded ping. A nil pool degrades to liveness semantics.
func readiness(pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := pool.Ping(ctx); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "database unreachable",
			})
			return
		}

		stats := pool.Stat()
		WriteJSON(w, http.StatusOK, map[string]any{
			"status":      "ready",
			"total_conns": stats.TotalConns(),
			"idle_conns":  stats.IdleConns(),
		})
	})
}
