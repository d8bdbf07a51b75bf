package models

import (
	"fmt"
	"time"
)

// FactCategory groups facts the user asked the companion to remember.
type FactCategory string

const (
	FactPreference FactCategory = "preference"
	FactFamily     FactCategory = "family"
	FactHistory    FactCategory = "history"
	FactGeneral    FactCategory = "general"
)

// FactCategories lists every accepted fact category.
var FactCategories = []FactCategory{FactPreference, FactFamily, FactHistory, FactGeneral}

// ParseFactCategory validates a category name.
func ParseFactCategory(s string) (FactCategory, error) {
	for _, c := range FactCategories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("invalid fact category %q", s)
}

// Fact is an immutable user-asserted statement.
type Fact struct {
	ID        string       `bson:"_id" json:"id"`
	UserKey   string       `bson:"userKey" json:"user_key"`
	Fact      string       `bson:"fact" json:"fact"`
	Category  FactCategory `bson:"category" json:"category"`
	CreatedAt time.Time    `bson:"createdAt" json:"timestamp"`
}
