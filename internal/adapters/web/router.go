package web

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes builds the HTTP routing table.
func SetupRoutes(s *Server) http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions/{sessionId}/challenge", s.handleIssueChallenge).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/report", s.handleSessionReport).Methods(http.MethodGet)
	api.HandleFunc("/verify", s.handleVerify).Methods(http.MethodPost)
	api.HandleFunc("/records/{recordId}/override", s.handleOverride).Methods(http.MethodPost)

	r.HandleFunc("/ws/alerts", s.WSManager.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return r
}
