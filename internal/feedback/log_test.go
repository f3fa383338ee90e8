package feedback

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	return NewLog(filepath.Join(t.TempDir(), "feedback.json"))
}

func TestRecord_AppendsEntry(t *testing.T) {
	l := newTestLog(t)

	entry, err := l.Record("s1", "m1", RatingUp, "helpful")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entry.ID == "" {
		t.Error("entry should get an id")
	}
	if entry.TS == 0 {
		t.Error("entry should be timestamped")
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Rating != RatingUp || entries[0].Note != "helpful" {
		t.Errorf("entry mangled: %+v", entries[0])
	}
}

func TestRecord_NoDeduplication(t *testing.T) {
	l := newTestLog(t)

	// Rating the same message twice yields two entries, by contract.
	if _, err := l.Record("s1", "m1", RatingUp, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := l.Record("s1", "m1", RatingDown, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (no dedup)", len(entries))
	}
	if entries[0].Rating != RatingUp || entries[1].Rating != RatingDown {
		t.Error("entries not in append order")
	}
}

func TestRecord_InvalidRating(t *testing.T) {
	l := newTestLog(t)

	if _, err := l.Record("s1", "m1", "meh", ""); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("got %v, want ErrInvalidRating", err)
	}

	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected rating must not be persisted, got %d entries", len(entries))
	}
}

func TestRecord_OrphanedReferencesAccepted(t *testing.T) {
	l := newTestLog(t)

	// The log does not verify the session or message exists.
	if _, err := l.Record("no-such-session", "no-such-message", RatingDown, ""); err != nil {
		t.Errorf("orphaned feedback should be accepted: %v", err)
	}
}

func TestEntries_EmptyLog(t *testing.T) {
	l := newTestLog(t)
	entries, err := l.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries from a fresh log, want 0", len(entries))
	}
}
