package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"amble/internal/models"
	"amble/internal/session"
	"amble/internal/store"
)

// ContextBlock is the merged memory handed to the model for one turn.
type ContextBlock struct {
	Text  string
	Hits  []Hit
	Facts []models.Fact
}

// Composer merges session profile fields, ledger facts and semantic hits.
type Composer struct {
	semantic      Semantic
	facts         store.FactStore
	topK          int
	factLimit     int
	searchTimeout time.Duration
}

// NewComposer creates a composer retrieving topK semantic hits per turn.
func NewComposer(semantic Semantic, facts store.FactStore, topK int) *Composer {
	if semantic == nil {
		semantic = Noop{}
	}
	if topK <= 0 {
		topK = 5
	}
	return &Composer{
		semantic:      semantic,
		facts:         facts,
		topK:          topK,
		factLimit:     5,
		searchTimeout: 5 * time.Second,
	}
}

// Compose never fails: retrieval errors leave the corresponding tier empty.
func (c *Composer) Compose(ctx context.Context, userKey string, state *session.State, utterance string) ContextBlock {
	var block ContextBlock

	searchCtx, cancel := context.WithTimeout(ctx, c.searchTimeout)
	hits, err := c.semantic.Search(searchCtx, userKey, utterance, c.topK)
	cancel()
	if err != nil {
		slog.Warn("semantic memory search failed, continuing without memories",
			"user_key", userKey, "error", err)
		hits = nil
	}
	SortHits(hits)
	if len(hits) > c.topK {
		hits = hits[:c.topK]
	}
	block.Hits = hits

	if c.facts != nil {
		facts, err := c.facts.SearchFacts(ctx, userKey, store.FactQuery{Limit: c.factLimit})
		if err != nil {
			slog.Warn("fact ledger read failed, continuing without facts", "user_key", userKey, "error", err)
		} else {
			block.Facts = facts
		}
	}

	block.Text = Render(state, block.Facts, block.Hits)
	return block
}

// Render formats the three tiers. It is a pure function of its inputs.
func Render(state *session.State, facts []models.Fact, hits []Hit) string {
	var b strings.Builder

	if state != nil {
		lines := []struct{ label, key string }{
			{"Name", session.KeyUserName},
			{"Location", session.KeyUserLocation},
			{"Interests", session.KeyUserInterests},
			{"Preferred language", session.KeyUserLanguage},
			{"Current time", session.KeyCurrentTime},
		}
		wrote := false
		for _, l := range lines {
			v := state.GetString(l.key)
			if v == "" {
				continue
			}
			if !wrote {
				b.WriteString("[About the user]\n")
				wrote = true
			}
			b.WriteString(l.label + ": " + v + "\n")
		}
	}

	if len(facts) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[Things the user asked you to remember]\n")
		for _, f := range facts {
			b.WriteString("- (" + string(f.Category) + ") " + f.Fact + "\n")
		}
	}

	if len(hits) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("[Relevant moments from earlier conversations]\n")
		for _, h := range hits {
			b.WriteString("- " + h.Text + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
