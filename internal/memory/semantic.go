// Package memory implements the semantic-memory capability and the
// composer that merges session, semantic and ledger memory into one
// context block for a turn.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Hit is one semantic search result. Higher Score is more similar.
type Hit struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Semantic is the similarity-search capability. Both calls may fail
// independently of the conversation; callers degrade instead of aborting.
type Semantic interface {
	Add(ctx context.Context, userKey, text string) error
	Search(ctx context.Context, userKey, query string, k int) ([]Hit, error)
}

// Noop is used when semantic memory is switched off.
type Noop struct{}

func (Noop) Add(context.Context, string, string) error { return nil }
func (Noop) Search(context.Context, string, string, int) ([]Hit, error) {
	return nil, nil
}

// SortHits orders by score descending, then recency descending, then id.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].ID < hits[j].ID
	})
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "your": true, "all": true, "any": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true, "has": true,
	"him": true, "his": true, "how": true, "its": true, "may": true, "who": true,
	"did": true, "what": true, "when": true, "where": true, "which": true, "with": true,
	"that": true, "this": true, "from": true, "have": true, "they": true, "them": true,
	"were": true, "will": true, "would": true, "there": true, "their": true, "about": true,
	"just": true, "like": true, "into": true, "than": true, "then": true, "some": true,
	"does": true, "also": true, "been": true, "being": true, "today": true, "tell": true,
}

// Terms splits text into lowercase search terms, dropping short words and
// stopwords. Order follows first appearance; duplicates are removed.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
