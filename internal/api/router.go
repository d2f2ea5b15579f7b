// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mentor-points/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(ledgerHandler *handler.LedgerHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)                       // Add a request ID to the context
	r.Use(middleware.RealIP)                          // Use the real IP address
	r.Use(requestLogger(logger))                      // Log HTTP requests
	r.Use(middleware.Recoverer)                       // Recover from panics and return 500
	r.Use(middleware.Timeout(handler.DefaultTimeout)) // Set a default timeout for requests

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Account API routes
	r.Route("/accounts/{owner}", func(r chi.Router) {
		r.Get("/", ledgerHandler.GetAccount)
		r.Post("/award", ledgerHandler.Award)
		r.Post("/deduct", ledgerHandler.Deduct)
		r.Get("/balance", ledgerHandler.GetBalance)
		r.Get("/transactions", ledgerHandler.GetTransactionHistory)
		r.Get("/earned", ledgerHandler.GetEarned)
		r.Get("/spent", ledgerHandler.GetSpent)
		r.Get("/reconcile", ledgerHandler.Reconcile)
	})

	// Reversal addresses a transaction, not an account
	r.Post("/transactions/{transactionID}/reverse", ledgerHandler.Reverse)
	r.Post("/sweeps", ledgerHandler.RunSweep)

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
