package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/ambassador/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const graphDocument = `{
	"metadata": {"title": "Fjords", "version": 3},
	"nodes": [{"id": "n1", "label": "Geiranger"}],
	"edges": []
}`

func newTestClient(t *testing.T, handler http.Handler) *httpClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newHTTPClient(config.GraphConfig{BaseURL: srv.URL + "/", Token: "secret"}, srv.Client(), zaptest.NewLogger(t))
}

func TestGetGraph(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getknowgraph", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Query().Get("id") {
		case "graph_123":
			_, _ = w.Write([]byte(graphDocument))
		case "graph_empty":
			w.WriteHeader(http.StatusOK)
		case "graph_broken":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	g, err := client.GetGraph(ctx, "graph_123")
	require.NoError(t, err)
	assert.Equal(t, "Fjords", g.Metadata()["title"])

	_, err = client.GetGraph(ctx, "graph_invalid_nonexistent")
	assert.ErrorIs(t, err, ErrGraphNotFound)

	_, err = client.GetGraph(ctx, "graph_empty")
	assert.ErrorIs(t, err, ErrGraphNotFound)

	_, err = client.GetGraph(ctx, "graph_broken")
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = client.GetGraph(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestExists(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "graph_123" {
			_, _ = w.Write([]byte(graphDocument))
			return
		}
		if r.URL.Query().Get("id") == "graph_down" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		http.NotFound(w, r)
	}))
	ctx := context.Background()

	ok, err := client.Exists(ctx, "graph_123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.Exists(ctx, "graph_down")
	assert.True(t, errors.Is(err, ErrUpstream))
}

func TestSaveAffiliateMetadata_PreservesDocument(t *testing.T) {
	var saved saveGraphRequest
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/getknowgraph":
			_, _ = w.Write([]byte(graphDocument))
		case "/saveGraphWithHistory":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	err := client.SaveAffiliateMetadata(context.Background(), "graph_123", AffiliateMetadata{
		HasAffiliates:  true,
		AffiliateCount: 2,
		LastUpdated:    updated,
	})
	require.NoError(t, err)

	assert.Equal(t, "graph_123", saved.ID)
	assert.True(t, saved.Override)
	meta := saved.GraphData["metadata"].(map[string]any)
	assert.Equal(t, "Fjords", meta["title"])
	assert.EqualValues(t, 3, meta["version"])
	affiliates := meta["affiliates"].(map[string]any)
	assert.Equal(t, true, affiliates["hasAffiliates"])
	assert.EqualValues(t, 2, affiliates["affiliateCount"])
	assert.Equal(t, "2026-03-01T12:00:00Z", affiliates["lastUpdated"])
	assert.Len(t, saved.GraphData["nodes"], 1)
}

func TestSaveAffiliateMetadata_UpstreamFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/getknowgraph" {
			_, _ = w.Write([]byte(graphDocument))
			return
		}
		http.Error(w, "write failed", http.StatusInternalServerError)
	}))

	err := client.SaveAffiliateMetadata(context.Background(), "graph_123", AffiliateMetadata{})
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "write failed")
}
