// Package httpapi exposes the memory service's HTTP surface over a
// Go 1.22+ http.ServeMux pattern-route table
// (mux.HandleFunc("GET /path/{id}", ...)).
package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"agentmemory/internal/lifecycle"
	"agentmemory/internal/memory"
	"agentmemory/internal/relationship"
	"agentmemory/internal/retrieve"
)

// Version is the reported service version in the response envelope.
const Version = "0.1.0"

// Server exposes every memory operation as a JSON route.
type Server struct {
	Manager      *memory.Manager
	Retriever    *retrieve.Retriever
	Relationship *relationship.Engine
	Lifecycle    *lifecycle.Engine
	Log          zerolog.Logger

	mux *http.ServeMux
}

// NewServer wires routes and returns a ready-to-serve Server.
func NewServer(manager *memory.Manager, retriever *retrieve.Retriever, rel *relationship.Engine, lc *lifecycle.Engine, log zerolog.Logger) *Server {
	s := &Server{Manager: manager, Retriever: retriever, Relationship: rel, Lifecycle: lc, Log: log, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /memories", s.handleCreate)
	s.mux.HandleFunc("PATCH /memories/{id}", s.handlePatch)
	s.mux.HandleFunc("DELETE /memories/{id}", s.handleDelete)
	s.mux.HandleFunc("GET /memories/{id}", s.handleGet)
	s.mux.HandleFunc("GET /memories", s.handleList)
	s.mux.HandleFunc("POST /memories/search", s.handleSearch)
	s.mux.HandleFunc("POST /memories/link", s.handleLink)
	s.mux.HandleFunc("GET /memories/{id}/related", s.handleRelated)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /config", s.handleConfig)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("GET /graph/stats", s.handleGraphStats)
}
