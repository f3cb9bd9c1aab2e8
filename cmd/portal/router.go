// cmd/portal/router.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"memberportal/internal/logging"
	"memberportal/internal/membership"
	"memberportal/internal/security"
	"memberportal/internal/speakers"
)

type routerDeps struct {
	DB       *sqlx.DB
	Members  membership.Service
	Speakers speakers.Service
	CSRF     *security.CSRF
	Sessions security.SessionOptions
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(security.Sessions(d.Sessions))
	r.Use(d.CSRF.Middleware)

	r.Get("/healthz", healthz(d.DB))
	r.Get("/csrf-token", d.CSRF.HandleToken)

	membership.NewHandler(d.Members).Routes(r)
	speakers.NewHandler(d.Speakers).Routes(r)

	return r
}

func healthz(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			status, code = "database unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger := logging.WithRequestID(middleware.GetReqID(r.Context()))
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("ip", security.ClientIP(r)).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
