package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteClient talks to a Mem0-compatible memory service over HTTP.
type RemoteClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRemoteClient creates a client for baseURL (e.g. https://api.mem0.ai).
func NewRemoteClient(baseURL, apiKey string) *RemoteClient {
	return &RemoteClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type remoteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type remoteAddRequest struct {
	Messages []remoteMessage `json:"messages"`
	UserID   string          `json:"user_id"`
}

type remoteSearchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit"`
}

type remoteMemory struct {
	ID        string  `json:"id"`
	Memory    string  `json:"memory"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"created_at"`
}

// Add stores text for the user.
func (c *RemoteClient) Add(ctx context.Context, userKey, text string) error {
	body := remoteAddRequest{
		Messages: []remoteMessage{{Role: "user", Content: text}},
		UserID:   userKey,
	}
	return c.post(ctx, "/v1/memories/", body, nil)
}

// Search returns the k most similar memories.
func (c *RemoteClient) Search(ctx context.Context, userKey, query string, k int) ([]Hit, error) {
	var raw json.RawMessage
	if err := c.post(ctx, "/v1/memories/search/", remoteSearchRequest{Query: query, UserID: userKey, Limit: k}, &raw); err != nil {
		return nil, err
	}

	// The service answers with either a bare list or {"results": [...]}.
	var items []remoteMemory
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapped struct {
			Results []remoteMemory `json:"results"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode search response: %w", err)
		}
		items = wrapped.Results
	}

	hits := make([]Hit, 0, len(items))
	for _, it := range items {
		h := Hit{ID: it.ID, Text: it.Memory, Score: it.Score}
		if ts, err := time.Parse(time.RFC3339, it.CreatedAt); err == nil {
			h.CreatedAt = ts.UTC()
		}
		hits = append(hits, h)
	}
	SortHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (c *RemoteClient) post(ctx context.Context, path string, in interface{}, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read memory service response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode memory service response: %w", err)
		}
	}
	return nil
}

var _ Semantic = (*RemoteClient)(nil)
