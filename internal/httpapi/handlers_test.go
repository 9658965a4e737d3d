package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/relationship"
	"agentmemory/internal/retrieve"
	"agentmemory/internal/store/fulltext"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	vs := vector.NewHNSW(64, "cos")
	gs := graph.NewMemory()
	ft, err := fulltext.New("")
	require.NoError(t, err)
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs, Graph: gs, Fulltext: ft}, backend)
	retriever := &retrieve.Retriever{Vector: vs, Fulltext: ft, Embedder: backend, Manager: mgr}
	rel := &relationship.Engine{Graph: gs, Manager: mgr, Vector: vs, Embedder: backend}
	return NewServer(mgr, retriever, rel, nil, zerolog.Nop())
}

func TestHandleCreateAndGet(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(memory.Record{Type: memory.TypeLearning, Content: "retries should use jitter to avoid thundering herd"})
	req := httptest.NewRequest(http.MethodPost, "/memories", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)

	created := env.Data.(map[string]any)
	id := created["id"].(string)
	require.NotEmpty(t, id)

	getReq := httptest.NewRequest(http.MethodGet, "/memories/"+id, nil)
	getRec := httptest.NewRecorder()
	s.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandleGet_UnknownIDReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/memories/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSearch_ReturnsItems(t *testing.T) {
	s := newTestServer(t)

	body, _ := json.Marshal(memory.Record{Type: memory.TypeError, Content: "database connection reset during upload under load"})
	createReq := httptest.NewRequest(http.MethodPost, "/memories", bytes.NewReader(body))
	createRec := httptest.NewRecorder()
	s.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusCreated, createRec.Code)

	searchBody, _ := json.Marshal(searchRequest{Query: "connection reset", Limit: 5})
	searchReq := httptest.NewRequest(http.MethodPost, "/memories/search", bytes.NewReader(searchBody))
	searchRec := httptest.NewRecorder()
	s.ServeHTTP(searchRec, searchReq)
	require.Equal(t, http.StatusOK, searchRec.Code)
}
