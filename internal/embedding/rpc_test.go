package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCBackendEmbedDocumentUsesDocumentMarker(t *testing.T) {
	var capturedInput []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		capturedInput = req.Input
		resp := embedResponse{Data: []embedDatum{{Embedding: []float32{0.1, 0.2}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	backend := NewRPC(RPCConfig{BaseURL: ts.URL, Model: "m", Dimensions: 2})
	vecs, err := backend.EmbedDocument(context.Background(), "hello", false)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vecs.Dense)
	require.Len(t, capturedInput, 1)
	assert.Equal(t, "passage: hello", capturedInput[0])
}

func TestRPCBackendEmbedQueryUsesQueryMarker(t *testing.T) {
	var capturedInput []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		capturedInput = req.Input
		resp := embedResponse{Data: []embedDatum{{Embedding: []float32{0.3}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	backend := NewRPC(RPCConfig{BaseURL: ts.URL, Model: "m"})
	_, err := backend.EmbedQuery(context.Background(), "what broke", false)
	require.NoError(t, err)
	require.Len(t, capturedInput, 1)
	assert.Equal(t, "query: what broke", capturedInput[0])
}

func TestRPCBackendRerankUnavailableWhenDisabled(t *testing.T) {
	backend := NewRPC(RPCConfig{BaseURL: "http://unused", Rerank: false})
	_, err := backend.Rerank(context.Background(), "q", []string{"a"})
	assert.ErrorIs(t, err, ErrRerankUnavailable)
}

func TestRPCBackendCountMismatchErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embedResponse{Data: []embedDatum{}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer ts.Close()

	backend := NewRPC(RPCConfig{BaseURL: ts.URL})
	_, err := backend.EmbedDocument(context.Background(), "x", false)
	assert.Error(t, err)
}
