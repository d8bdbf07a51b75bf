package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteClient(t *testing.T) {
	var added remoteAddRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/memories/":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&added))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true}`))
		case "/v1/memories/search/":
			w.Write([]byte(`{"results":[
				{"id":"a","memory":"likes tea","score":0.4,"created_at":"2026-01-01T10:00:00Z"},
				{"id":"b","memory":"daughter in Pune","score":0.9,"created_at":"2026-01-02T10:00:00Z"},
				{"id":"c","memory":"walks daily","score":0.4,"created_at":"2026-01-03T10:00:00Z"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewRemoteClient(srv.URL+"/", "secret")
	ctx := context.Background()

	require.NoError(t, c.Add(ctx, "u1", "hello"))
	assert.Equal(t, "u1", added.UserID)
	require.Len(t, added.Messages, 1)
	assert.Equal(t, "hello", added.Messages[0].Content)

	hits, err := c.Search(ctx, "u1", "family", 5)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	// Score desc, ties by recency desc.
	assert.Equal(t, []string{"b", "c", "a"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestRemoteClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewRemoteClient(srv.URL, "").Search(context.Background(), "u1", "x", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
