package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxTitleLen bounds the default title derived from the first message.
const maxTitleLen = 60

// Store persists sessions as one JSON file per session under a root
// directory. Save is a full-document overwrite; the store tolerates
// high-frequency overwrite (e.g. a save per streamed fragment) by writing
// to a temp file and renaming, so a crash never leaves a torn document.
// Last writer wins.
type Store struct {
	root string

	mu        sync.Mutex
	observers []func(Summary)
}

// NewStore creates a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &Store{root: dir}, nil
}

// Subscribe registers an observer invoked synchronously, in save order, after
// every successful Save. This replaces ad hoc cross-component notification:
// delivery order is the order of saves.
func (s *Store) Subscribe(fn func(Summary)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Save persists the session and returns it with server-assigned fields
// filled in. If the session has no id, the store mints one. This is the only
// place a session id is created, and callers must adopt the returned id.
// UpdatedAt is always stamped here, never taken from the caller.
func (s *Store) Save(sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.CreatedAt == 0 {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	if sess.Title == "" {
		sess.Title = defaultTitle(sess.Messages)
	}
	if sess.Messages == nil {
		sess.Messages = []Message{}
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return Session{}, fmt.Errorf("marshalling session: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, "session-*.tmp")
	if err != nil {
		return Session{}, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return Session{}, fmt.Errorf("writing session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return Session{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(sess.ID)); err != nil {
		os.Remove(tmpPath)
		return Session{}, fmt.Errorf("saving session %s: %w", sess.ID, err)
	}

	summary := Summary{ID: sess.ID, Title: sess.Title, CreatedAt: sess.CreatedAt, UpdatedAt: sess.UpdatedAt}
	for _, fn := range s.observers {
		fn(summary)
	}

	return sess, nil
}

// Get loads a session by id.
func (s *Store) Get(id string) (Session, error) {
	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("reading session %s: %w", id, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return sess, nil
}

// List returns summaries of all sessions ordered by recency. Files that fail
// to decode are skipped rather than failing the whole listing.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading sessions directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, entry.Name()))
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			ID:        sess.ID,
			Title:     sess.Title,
			CreatedAt: sess.CreatedAt,
			UpdatedAt: sess.UpdatedAt,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt > summaries[j].UpdatedAt
	})
	return summaries, nil
}

// Delete removes a session. Deleting a session that does not exist is not an
// error.
func (s *Store) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

func (s *Store) path(id string) string {
	// Session ids are server-minted UUIDs, but sanitize anyway since the id
	// becomes a file name.
	return filepath.Join(s.root, filepath.Base(id)+".json")
}

func defaultTitle(messages []Message) string {
	for _, m := range messages {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > maxTitleLen {
			return string(runes[:maxTitleLen])
		}
		return text
	}
	return "Session " + time.Now().Format("2006-01-02 15:04")
}
