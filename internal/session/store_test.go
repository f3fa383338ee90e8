package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestSave_MintsID(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(Session{Messages: []Message{{ID: "m1", Role: RoleUser, Text: "hello"}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("store should mint an id for a new session")
	}
	if saved.CreatedAt == 0 || saved.UpdatedAt == 0 {
		t.Error("timestamps should be stamped")
	}
}

func TestSave_KeepsExistingID(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Save(Session{Messages: []Message{{ID: "m1", Role: RoleUser, Text: "hi"}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	first.Messages = append(first.Messages, Message{ID: "m2", Role: RoleAssistant, Text: "hey"})
	second, err := s.Save(first)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("id changed across saves: %s vs %s", first.ID, second.ID)
	}

	got, err := s.Get(first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(got.Messages))
	}
}

func TestSave_StampsUpdatedAt(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(Session{
		Messages:  []Message{{ID: "m1", Role: RoleUser, Text: "x"}},
		UpdatedAt: 42, // caller-supplied value must be ignored
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.UpdatedAt == 42 {
		t.Error("UpdatedAt must be server-stamped, not taken from the caller")
	}
}

func TestSave_DefaultTitle(t *testing.T) {
	s := newTestStore(t)

	long := strings.Repeat("a", 100)
	saved, err := s.Save(Session{Messages: []Message{{ID: "m1", Role: RoleUser, Text: long}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len([]rune(saved.Title)) != 60 {
		t.Errorf("default title should truncate to 60 runes, got %d", len([]rune(saved.Title)))
	}

	titled, err := s.Save(Session{Title: "My chat", Messages: []Message{{ID: "m1", Role: RoleUser, Text: long}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if titled.Title != "My chat" {
		t.Errorf("explicit title overwritten: got %q", titled.Title)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)

	a, err := s.Save(Session{Messages: []Message{{ID: "m", Role: RoleUser, Text: "first"}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	b, err := s.Save(Session{Messages: []Message{{ID: "m", Role: RoleUser, Text: "second"}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	summaries, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].ID != b.ID || summaries[1].ID != a.ID {
		t.Error("summaries not ordered most recent first")
	}
}

func TestDelete_Idempotent(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save(Session{Messages: []Message{{ID: "m", Role: RoleUser, Text: "x"}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(saved.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(saved.ID); err != nil {
		t.Errorf("deleting an already-deleted session should not error: %v", err)
	}
	if _, err := s.Get(saved.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v after delete, want ErrNotFound", err)
	}
}

func TestSubscribe_NotifiedInSaveOrder(t *testing.T) {
	s := newTestStore(t)

	var seen []string
	s.Subscribe(func(sum Summary) {
		seen = append(seen, sum.Title)
	})

	for _, title := range []string{"one", "two", "three"} {
		if _, err := s.Save(Session{Title: title}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	if len(seen) != 3 {
		t.Fatalf("observer saw %d saves, want 3", len(seen))
	}
	for i, want := range []string{"one", "two", "three"} {
		if seen[i] != want {
			t.Errorf("notification %d: got %q, want %q", i, seen[i], want)
		}
	}
}

func TestSave_HighFrequencyOverwrite(t *testing.T) {
	s := newTestStore(t)

	sess, err := s.Save(Session{Messages: []Message{{ID: "m1", Role: RoleUser, Text: "q"}, {ID: "m2", Role: RoleAssistant}}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Simulate a save per streamed fragment.
	for i := 0; i < 50; i++ {
		sess.Messages[1].Text += "tok "
		sess, err = s.Save(sess)
		if err != nil {
			t.Fatalf("overwrite %d: %v", i, err)
		}
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Messages[1].Text != strings.Repeat("tok ", 50) {
		t.Errorf("final document lost fragments: %q", got.Messages[1].Text)
	}
}
