package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Preferences is process-local UI state: the selected theme and the pointer
// to the session a client should resume. It lives on the App rather than in
// ambient globals, with explicit load and reset operations.
type Preferences struct {
	Theme            string `json:"theme"`
	CurrentSessionID string `json:"currentSessionId"`
}

// Prefs owns the preferences document under the data root.
type Prefs struct {
	path string

	mu      sync.Mutex
	current Preferences
}

// newPrefs loads preferences from dataRoot, starting from defaults when the
// file is missing or unreadable.
func newPrefs(dataRoot string) *Prefs {
	p := &Prefs{
		path:    filepath.Join(dataRoot, "prefs.json"),
		current: defaultPreferences(),
	}
	if data, err := os.ReadFile(p.path); err == nil {
		var loaded Preferences
		if json.Unmarshal(data, &loaded) == nil {
			p.current = loaded
		}
	}
	return p
}

func defaultPreferences() Preferences {
	return Preferences{Theme: "system"}
}

// Get returns the current preferences.
func (p *Prefs) Get() Preferences {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Set replaces the preferences and persists them.
func (p *Prefs) Set(prefs Preferences) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = prefs
	return p.save()
}

// Reset restores defaults and removes the persisted document.
func (p *Prefs) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = defaultPreferences()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing prefs: %w", err)
	}
	return nil
}

func (p *Prefs) save() error {
	data, err := json.MarshalIndent(p.current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling prefs: %w", err)
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("writing prefs: %w", err)
	}
	return nil
}
