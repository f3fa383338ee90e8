package splitter

import (
	"strings"
	"testing"
)

func TestSplit_Empty(t *testing.T) {
	if got := Split("", 800); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := Split("   \n\t  ", 800); got != nil {
		t.Errorf("expected nil for whitespace-only input, got %v", got)
	}
}

func TestSplit_ShortInput(t *testing.T) {
	chunks := Split("hello world", 800)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("got %q, want %q", chunks[0], "hello world")
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 100)
	a := Split(text, 800)
	b := Split(text, 800)
	if len(a) != len(b) {
		t.Fatalf("runs disagree: %d vs %d chunks", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplit_ChunkCount(t *testing.T) {
	// 3000 chars of sentence-shaped text at size 800 should land on 4 chunks.
	sentence := "This sentence has exactly fifty characters in it! "
	text := strings.Repeat(sentence, 60)[:3000]
	chunks := Split(text, 800)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 800 {
			t.Errorf("chunk %d exceeds size: %d runes", i, len([]rune(c)))
		}
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	para := strings.Repeat("word ", 100) // 500 chars
	text := para + "\n\n" + para
	chunks := Split(text, 800)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if strings.Contains(chunks[0], "\n\n") {
		t.Error("first chunk should end at the paragraph break")
	}
}

func TestSplit_SentenceBoundary(t *testing.T) {
	text := strings.Repeat("A sentence ends here. ", 50) // 1100 chars, no paragraphs
	chunks := Split(text, 800)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	first := strings.TrimRight(chunks[0], " ")
	if !strings.HasSuffix(first, ".") {
		t.Errorf("first chunk should end at a sentence boundary, got %q", first[len(first)-20:])
	}
}

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 2000)
	chunks := Split(text, 800)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 800 || len(chunks[1]) != 800 || len(chunks[2]) != 400 {
		t.Errorf("got lengths %d/%d/%d, want 800/800/400", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestSplit_ContentPreserved(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta. ", 120)
	chunks := Split(text, 800)
	joined := strings.Join(chunks, "")
	// Boundary trimming may drop separator whitespace but never words.
	for _, word := range []string{"alpha", "beta", "gamma", "delta"} {
		if strings.Count(joined, word) != strings.Count(text, word) {
			t.Errorf("word %q lost during splitting", word)
		}
	}
}

func TestSplit_UnicodeSafe(t *testing.T) {
	text := strings.Repeat("héllo wörld こんにちは. ", 100)
	for _, c := range Split(text, 100) {
		if strings.ContainsRune(c, '�') {
			t.Error("chunk contains a replacement rune, multi-byte character was cut")
		}
	}
}
