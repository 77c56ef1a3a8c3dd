package model

import (
	"time"
)

// SessionRecord is a cached parent record: one streamed work session,
// partitioned by repo for the eviction sweep.
type SessionRecord struct {
	ID           string
	Repo         string
	Title        string
	LastActivity time.Time
}

// SessionMessage is a child record referencing its session; deleted
// transactionally with the parent.
type SessionMessage struct {
	SessionID string
	Seq       int
	Kind      string // "user" | "assistant" | "tool" | "result"
	Content   string
	CreatedAt time.Time
}

// JobRecord is an independently cached job snapshot keyed by issue key.
// Payload holds the serialized jobs for that key so a cold start can render
// the board before the first poll returns.
type JobRecord struct {
	Key          string
	Repo         string
	Payload      []byte
	LastActivity time.Time
}

func NewSessionRecord(id, repo, title string) *SessionRecord {
	return &SessionRecord{ID: id, Repo: repo, Title: title, LastActivity: time.Now()}
}
