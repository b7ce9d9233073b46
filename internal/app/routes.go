package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rate-limiter/internal/handlers"
	"rate-limiter/internal/middleware"
)

// SetupRoutes configures all HTTP routes for the application
func SetupRoutes(router *mux.Router, h *handlers.Handlers, metrics http.Handler) {
	router.Use(middleware.LoggingMiddleware)

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
	router.Handle("/metrics", metrics).Methods("GET")

	// Gateway sub-requests
	router.HandleFunc("/v1/admit/{policy}", h.Admit).Methods("POST")

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/policies", h.GetPolicies).Methods("GET")
	api.HandleFunc("/policies/{policy}", h.GetPolicy).Methods("GET")
	api.HandleFunc("/policies/{policy}", h.PutPolicy).Methods("PUT")
	api.HandleFunc("/policies/{policy}", h.DeletePolicy).Methods("DELETE")
	api.HandleFunc("/policies/{policy}/status", h.GetPolicyStatus).Methods("GET")
	api.HandleFunc("/policies/{policy}/records", h.ResetRecords).Methods("DELETE")

	api.HandleFunc("/stats", h.GetStats).Methods("GET")
}

// Handler builds the full HTTP handler of the application
func (app *App) Handler() http.Handler {
	h := handlers.New(app.Engine, app.UserIDFunc(), app.durableHealth)
	router := mux.NewRouter()
	SetupRoutes(router, h, promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}))
	return router
}
