package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"agentmemory/internal/apierr"
	"agentmemory/internal/memory"
	"agentmemory/internal/relationship"
	"agentmemory/internal/retrieve"
)

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var rec memory.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		respondError(w, apierr.Validation("invalid request body: %v", err))
		return
	}
	created, err := s.Manager.Upsert(r.Context(), rec)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, created)
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var patch memory.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, apierr.Validation("invalid request body: %v", err))
		return
	}
	updated, err := s.Manager.PatchRecord(r.Context(), id, patch, s.Manager.Get)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Manager.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.Manager.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, rec)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	records, err := s.Manager.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"memories": records})
}

type searchRequest struct {
	Query         string   `json:"query"`
	Project       string   `json:"project"`
	Type          string   `json:"type"`
	TagsContains  []string `json:"tags_contains"`
	Source        string   `json:"source"`
	Limit         int      `json:"limit"`
	Rerank        bool     `json:"rerank"`
	Alpha         *float64 `json:"alpha"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.Validation("invalid request body: %v", err))
		return
	}
	alpha := 0.5
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	resp, err := s.Retriever.Search(r.Context(), retrieve.Request{
		Query:        req.Query,
		Project:      req.Project,
		Type:         req.Type,
		TagsContains: req.TagsContains,
		Source:       req.Source,
		Limit:        limit,
		Rerank:       req.Rerank,
		Alpha:        alpha,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondDataDegraded(w, http.StatusOK, map[string]any{
		"items":   resp.Items,
		"clamped": resp.Clamped,
	}, resp.Degraded)
}

type linkRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, apierr.Validation("invalid request body: %v", err))
		return
	}
	relType := req.Type
	if relType == "" {
		relType = relationship.Related
	}
	if err := s.Relationship.Link(r.Context(), req.Source, req.Target, relType); err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusCreated, map[string]string{"source": req.Source, "target": req.Target, "type": relType})
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	maxHops, _ := strconv.Atoi(r.URL.Query().Get("max_hops"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	nodes, err := s.Relationship.Related(r.Context(), id, maxHops, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"related": nodes})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg := map[string]any{"version": Version}
	if s.Retriever != nil && s.Retriever.Embedder != nil {
		cfg["embedding_model"] = s.Retriever.Embedder.Name()
		cfg["dimensions"] = s.Retriever.Embedder.Dimension()
		cfg["sparse_enabled"] = s.Retriever.Embedder.SparseAvailable()
		cfg["reranker_enabled"] = s.Retriever.Embedder.RerankAvailable()
	}
	cfg["graph_enabled"] = s.Relationship != nil && s.Relationship.Graph != nil
	respondData(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.Manager.List(r.Context(), 0, 0)
	if err != nil {
		respondError(w, err)
		return
	}
	byType := map[memory.Type]int{}
	for _, rec := range records {
		byType[rec.Type]++
	}
	respondData(w, http.StatusOK, map[string]any{"total": len(records), "by_type": byType})
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	pending := s.Manager.PendingReconciliation()
	respondData(w, http.StatusOK, map[string]any{"pending_reconciliation": len(pending)})
}
