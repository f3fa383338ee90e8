// Package session persists chat conversations as JSON documents, one file
// per session, and is the source of truth for history replay.
package session

import (
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("session not found")

// Roles a chat message can carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single conversation turn. Messages are immutable once created,
// except that an assistant message's Text grows incrementally while its
// response stream is still running.
type Message struct {
	ID             string          `json:"id"`
	Role           string          `json:"role"`
	Text           string          `json:"text"`
	Structured     json.RawMessage `json:"structured,omitempty"`
	FileAttachment string          `json:"fileAttachment,omitempty"`
	ImageURL       string          `json:"imageUrl,omitempty"`
}

// Session is a persisted conversation. Timestamps are epoch milliseconds.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// Summary is the listing view of a session, without its messages.
type Summary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}
