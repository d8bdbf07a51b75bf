package models

import "time"

// TurnRecord is the persisted transcript of one completed conversation turn.
type TurnRecord struct {
	ID        string    `bson:"_id" json:"id"`
	UserKey   string    `bson:"userKey" json:"user_key"`
	SessionID string    `bson:"sessionId" json:"session_id"`
	UserText  string    `bson:"userText" json:"user_text"`
	Response  string    `bson:"response" json:"response"`
	Actions   []string  `bson:"actions" json:"actions"`
	CreatedAt time.Time `bson:"createdAt" json:"timestamp"`
}
