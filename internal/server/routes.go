// Package server wires HTTP handlers into the application router.
package server

import "github.com/gorilla/mux"

// Routes configures and returns the router with the health check and
// WebSocket endpoints.
func (r *Relay) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", HealthHandler).Methods("GET")
	router.HandleFunc("/ws", r.ServeWS)
	return router
}
