package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FTSIndex is a local semantic-memory capability on SQLite FTS5. Similarity
// is bm25 over the terms of the query, any term matching.
type FTSIndex struct {
	db  *sql.DB
	now func() time.Time
}

// NewFTSIndex creates the memory tables on db (a modernc SQLite handle) if needed.
func NewFTSIndex(ctx context.Context, db *sql.DB) (*FTSIndex, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS semantic_memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_key TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_memories_user ON semantic_memories (user_key, created_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS semantic_memories_fts USING fts5(
			text,
			content='semantic_memories',
			content_rowid='id'
		)`,
		`CREATE TRIGGER IF NOT EXISTS semantic_memories_ai AFTER INSERT ON semantic_memories BEGIN
			INSERT INTO semantic_memories_fts(rowid, text) VALUES (new.id, new.text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS semantic_memories_ad AFTER DELETE ON semantic_memories BEGIN
			INSERT INTO semantic_memories_fts(semantic_memories_fts, rowid, text) VALUES ('delete', old.id, old.text);
		END`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create semantic index: %w", err)
		}
	}
	return &FTSIndex{db: db, now: time.Now}, nil
}

// Add stores text for the user.
func (f *FTSIndex) Add(ctx context.Context, userKey, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO semantic_memories (user_key, text, created_at) VALUES (?, ?, ?)`,
		userKey, text, f.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add memory: %w", err)
	}
	return nil
}

// Search returns up to k memories of the user ranked by bm25.
func (f *FTSIndex) Search(ctx context.Context, userKey, query string, k int) ([]Hit, error) {
	match := ftsQuery(query)
	if match == "" || k <= 0 {
		return nil, nil
	}

	rows, err := f.db.QueryContext(ctx, `
		SELECT m.id, m.text, m.created_at, bm25(semantic_memories_fts) AS score
		FROM semantic_memories_fts
		JOIN semantic_memories m ON m.id = semantic_memories_fts.rowid
		WHERE semantic_memories_fts MATCH ? AND m.user_key = ?
		ORDER BY score ASC, m.created_at DESC
		LIMIT ?`, match, userKey, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id    int64
			text  string
			ts    int64
			score float64
		)
		if err := rows.Scan(&id, &text, &ts, &score); err != nil {
			return nil, err
		}
		hits = append(hits, Hit{
			ID:        strconv.FormatInt(id, 10),
			Text:      text,
			Score:     -score, // bm25 is lower-is-better
			CreatedAt: time.UnixMilli(ts).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortHits(hits)
	return hits, nil
}

// ftsQuery quotes each term so user text can never inject FTS syntax.
func ftsQuery(query string) string {
	terms := Terms(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, "") + `"`
	}
	return strings.Join(terms, " OR ")
}

var _ Semantic = (*FTSIndex)(nil)
