package tools

import (
	"context"
	"fmt"
	"strings"

	"amble/internal/memory"
	"amble/internal/models"
	"amble/internal/store"
)

type rememberArgs struct {
	Fact     string `json:"fact"`
	Category string `json:"category"`
}

func (d *domainTools) rememberFactTool() *Tool {
	return &Tool{
		Name: "remember_fact",
		Description: "Remembers a detail about the user that no other tool covers, e.g. " +
			"\"My grandson's name is Rahul\" or \"I worked as a teacher\".",
		Parameters: object(map[string]interface{}{
			"fact":     str("The detail to remember, as a full sentence"),
			"category": enum("Kind of fact, defaults to general", models.FactCategories),
		}, "fact"),
		Domain:  DomainFacts,
		Mutates: true,
		Handler: Typed(d.rememberFact),
	}
}

func (d *domainTools) rememberFact(ctx context.Context, inv Invocation, args rememberArgs) Result {
	text := strings.TrimSpace(args.Fact)
	if text == "" {
		return Errorf("fact is required")
	}
	category := models.FactGeneral
	if args.Category != "" {
		c, err := models.ParseFactCategory(strings.ToLower(args.Category))
		if err != nil {
			return Errorf("%v", err)
		}
		category = c
	}

	f := &models.Fact{
		ID:        newID(),
		UserKey:   inv.UserKey,
		Fact:      text,
		Category:  category,
		CreatedAt: inv.Now.UTC(),
	}
	if err := d.Store.AddFact(ctx, f); err != nil {
		return Errorf("could not save fact: %v", err)
	}
	return Success("I've made a note of that: "+text, map[string]interface{}{"fact_id": f.ID})
}

type recallArgs struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

func (d *domainTools) recallMemoriesTool() *Tool {
	return &Tool{
		Name:        "recall_memories",
		Description: "Looks up remembered facts about the user by keywords and/or category, newest first.",
		Parameters: object(map[string]interface{}{
			"query":    str("Words to look for, e.g. 'grandson'"),
			"category": enum("Only facts of this kind", models.FactCategories),
		}),
		Domain:  DomainFacts,
		Handler: Typed(d.recallMemories),
	}
}

func (d *domainTools) recallMemories(ctx context.Context, inv Invocation, args recallArgs) Result {
	q := store.FactQuery{Limit: 20}
	if args.Category != "" {
		c, err := models.ParseFactCategory(strings.ToLower(args.Category))
		if err != nil {
			return Errorf("%v", err)
		}
		q.Category = c
	}
	if query := strings.TrimSpace(args.Query); query != "" {
		q.Terms = memory.Terms(query)
		if len(q.Terms) == 0 {
			q.Terms = []string{strings.ToLower(query)}
		}
	}

	facts, err := d.Store.SearchFacts(ctx, inv.UserKey, q)
	if err != nil {
		return Errorf("could not search memories: %v", err)
	}
	if len(facts) == 0 {
		return NotFound("I don't have anything noted about that yet.")
	}

	list := make([]map[string]interface{}, len(facts))
	for i, f := range facts {
		list[i] = map[string]interface{}{
			"fact":      f.Fact,
			"category":  string(f.Category),
			"timestamp": f.CreatedAt,
		}
	}
	return Success(fmt.Sprintf("I found %d thing(s) I remember.", len(facts)), map[string]interface{}{"memories": list})
}
