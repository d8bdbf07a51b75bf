package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amble/internal/models"
	"amble/internal/session"
	"amble/internal/store"
)

type stubSemantic struct {
	hits []Hit
	err  error
}

func (s *stubSemantic) Add(context.Context, string, string) error { return nil }
func (s *stubSemantic) Search(context.Context, string, string, int) ([]Hit, error) {
	out := make([]Hit, len(s.hits))
	copy(out, s.hits)
	return out, s.err
}

type stubFacts struct {
	facts []models.Fact
	err   error
}

func (s *stubFacts) AddFact(context.Context, *models.Fact) error { return nil }
func (s *stubFacts) SearchFacts(context.Context, string, store.FactQuery) ([]models.Fact, error) {
	return s.facts, s.err
}

func testState() *session.State {
	st := session.NewStore(time.Hour)
	s, _ := st.Resolve("s1", "u1")
	s.LoadProfile(&models.UserProfile{UserKey: "u1", Name: "Asha", Location: "Pune"})
	return s
}

func TestComposeOrdersHits(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sem := &stubSemantic{hits: []Hit{
		{ID: "1", Text: "old tie", Score: 0.5, CreatedAt: t0},
		{ID: "2", Text: "best", Score: 0.9, CreatedAt: t0},
		{ID: "3", Text: "new tie", Score: 0.5, CreatedAt: t0.Add(time.Hour)},
		{ID: "4", Text: "low", Score: 0.1, CreatedAt: t0},
		{ID: "5", Text: "lower", Score: 0.05, CreatedAt: t0},
		{ID: "6", Text: "lowest", Score: 0.01, CreatedAt: t0},
	}}
	c := NewComposer(sem, nil, 5)

	block := c.Compose(context.Background(), "u1", testState(), "anything")
	require.Len(t, block.Hits, 5)
	got := []string{}
	for _, h := range block.Hits {
		got = append(got, h.ID)
	}
	assert.Equal(t, []string{"2", "3", "1", "4", "5"}, got)

	// Same retrieval result renders the same block.
	again := c.Compose(context.Background(), "u1", testState(), "anything")
	assert.Equal(t, block.Text, again.Text)
}

func TestComposeSurvivesSearchFailure(t *testing.T) {
	c := NewComposer(&stubSemantic{err: errors.New("service down")},
		&stubFacts{facts: []models.Fact{{Fact: "Daughter lives in Pune", Category: models.FactFamily}}}, 5)

	block := c.Compose(context.Background(), "u1", testState(), "hello")
	assert.Empty(t, block.Hits)
	assert.Contains(t, block.Text, "Name: Asha")
	assert.Contains(t, block.Text, "(family) Daughter lives in Pune")
	assert.NotContains(t, block.Text, "earlier conversations")
}

func TestComposeSurvivesFactFailure(t *testing.T) {
	c := NewComposer(&stubSemantic{hits: []Hit{{ID: "1", Text: "likes tea", Score: 1}}},
		&stubFacts{err: errors.New("db locked")}, 5)

	block := c.Compose(context.Background(), "u1", testState(), "tea")
	assert.Len(t, block.Hits, 1)
	assert.Empty(t, block.Facts)
	assert.Contains(t, block.Text, "- likes tea")
}

func TestRenderEmpty(t *testing.T) {
	assert.Equal(t, "", Render(nil, nil, nil))
}
