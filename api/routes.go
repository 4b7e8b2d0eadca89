// Package api wires handlers onto the router.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"streamvault/config"
	"streamvault/handlers"
	"streamvault/services/resolver"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts all routes on the router.
func Register(router *mux.Router, cfgManager *config.Manager, resolverSvc *resolver.Service, prefetcher *resolver.Prefetcher) {
	streamsHandler := handlers.NewStreamsHandler(resolverSvc, prefetcher)
	eventsHandler := handlers.NewEventsHandler(resolverSvc, prefetcher)
	settingsHandler := handlers.NewSettingsHandler(cfgManager, resolverSvc)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/streams/prefetch", streamsHandler.Prefetch).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/streams/{id:[0-9]+}/{season:[0-9]+}/{episode:[0-9]+}", streamsHandler.GetStreamsNested).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/streams/{id:[0-9]+}/{season:[0-9]+}/{episode:[0-9]+}", streamsHandler.DeleteStreams).Methods(http.MethodDelete)
	api.HandleFunc("/streams/{id:[0-9]+}", streamsHandler.GetStreams).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/streams/{id:[0-9]+}", streamsHandler.DeleteStreams).Methods(http.MethodDelete)

	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut)

	router.HandleFunc("/ws", eventsHandler.ServeWS)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
}
