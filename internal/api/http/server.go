// Package httpapi serves the connector's management API: filtered queries
// over negotiations and agreements, single-record lookups, administrative
// deletion, and a live event stream.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appNegotiation "github.com/contract-hub/contract-hub/internal/application/negotiation"
	"github.com/contract-hub/contract-hub/internal/events"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	negotiationSvc *appNegotiation.Service
	events         *events.Router
}

func NewServer(negotiationSvc *appNegotiation.Service, eventRouter *events.Router) *Server {
	return &Server{
		negotiationSvc: negotiationSvc,
		events:         eventRouter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/negotiations", func(r chi.Router) {
			r.Post("/query", s.queryNegotiations)
			r.Get("/{negotiationId}", s.getNegotiation)
			r.Get("/{negotiationId}/state", s.getNegotiationState)
			r.Delete("/{negotiationId}", s.deleteNegotiation)
		})
		r.Route("/agreements", func(r chi.Router) {
			r.Post("/query", s.queryAgreements)
			r.Get("/{agreementId}", s.getAgreement)
		})
		r.Get("/events", s.streamEvents)
	})

	return r
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]any{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
