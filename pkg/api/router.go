package api

import (
	"github.com/gorilla/mux"
)

// NewRouter creates and configures the HTTP router
func NewRouter(handler *Handler, hub *Hub) *mux.Router {
	r := mux.NewRouter()

	// Health check outside the versioned prefix, for probes
	r.HandleFunc("/healthz", handler.HealthCheck).Methods("GET")

	// Refresh notifications for UI clients
	r.HandleFunc("/ws/notify", hub.HandleWS).Methods("GET")

	// API v1 routes
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", handler.GetStatus).Methods("GET")

	// User routes
	api.HandleFunc("/users", handler.CreateUser).Methods("POST")
	api.HandleFunc("/users", handler.ListUsers).Methods("GET")
	api.HandleFunc("/users/{id}", handler.DeleteUser).Methods("DELETE")
	api.HandleFunc("/users/{name}/select", handler.SelectUser).Methods("POST")

	// Watched process routes
	api.HandleFunc("/users/{id}/processes", handler.ListProcesses).Methods("GET")
	api.HandleFunc("/users/{id}/processes", handler.RegisterProcess).Methods("POST")
	api.HandleFunc("/processes/{id}", handler.UpdateProcess).Methods("PUT")
	api.HandleFunc("/processes/{id}", handler.DeleteProcess).Methods("DELETE")

	// Scheduled event routes
	api.HandleFunc("/users/{id}/events", handler.ListEvents).Methods("GET")
	api.HandleFunc("/users/{id}/events", handler.CreateEvent).Methods("POST")
	api.HandleFunc("/events/{id}", handler.UpdateEvent).Methods("PUT")
	api.HandleFunc("/events/{id}", handler.DeleteEvent).Methods("DELETE")

	// Usage routes
	api.HandleFunc("/users/{id}/usage", handler.ListUsage).Methods("GET")
	api.HandleFunc("/users/{id}/daily", handler.ListDailyUsage).Methods("GET")

	return r
}
