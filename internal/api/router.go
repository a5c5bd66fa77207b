package api

import (
	"net/http"

	"fxquotes/internal/rate/handler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(quoteHandler *handler.Handler, metricsHandler http.Handler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Heartbeat("/healthz"))

	router.Handle("/metrics", metricsHandler)

	router.Get("/api/v1/quotes/{code}", quoteHandler.GetQuotes)
	router.Get("/api/v1/quotes/{code}/latest", quoteHandler.GetLatest)
	router.Get("/api/v1/days/{date}", quoteHandler.GetDay)
	router.Post("/api/v1/backfills", quoteHandler.TriggerBackfill)
	return router
}
