// Package feedback keeps an append-only record of per-message user ratings.
package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRating is returned when a rating is neither up nor down.
var ErrInvalidRating = errors.New("invalid rating")

// Ratings recognized by the log.
const (
	RatingUp   = "up"
	RatingDown = "down"
)

// Entry is one recorded rating. Entries are never deduplicated: rating the
// same message twice yields two entries. The referenced session and message
// are not verified to exist; orphaned feedback is kept rather than losing
// user signal on a race.
type Entry struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	MessageID string `json:"messageId"`
	Rating    string `json:"rating"`
	Note      string `json:"note,omitempty"`
	TS        int64  `json:"ts"`
}

// Log appends entries to a single JSON array file.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog creates a Log backed by the given file path.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Record validates the rating, appends an entry, and returns it.
func (l *Log) Record(sessionID, messageID, rating, note string) (Entry, error) {
	if rating != RatingUp && rating != RatingDown {
		return Entry{}, fmt.Errorf("%w: %q must be %q or %q", ErrInvalidRating, rating, RatingUp, RatingDown)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.read()
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		MessageID: messageID,
		Rating:    rating,
		Note:      note,
		TS:        time.Now().UnixMilli(),
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("marshalling feedback: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return Entry{}, fmt.Errorf("writing feedback log: %w", err)
	}
	return entry, nil
}

// Entries returns all recorded feedback in append order.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

func (l *Log) read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading feedback log: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decoding feedback log: %w", err)
	}
	return entries, nil
}
