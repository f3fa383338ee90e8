package parser

import (
	"errors"
	"strings"
	"testing"
)

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.txt", "b.md", "c.pdf", "d.csv", "e.html", "f.htm", "G.TXT"} {
		if !Supported(name) {
			t.Errorf("%s should be supported", name)
		}
	}
	for _, name := range []string{"a.png", "b.docx", "c", "d.exe"} {
		if Supported(name) {
			t.Errorf("%s should not be supported", name)
		}
	}
}

func TestParse_TextPassthrough(t *testing.T) {
	got, err := Parse("notes.txt", []byte("plain text\ncontent"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != "plain text\ncontent" {
		t.Errorf("got %q", got)
	}
}

func TestParse_MarkdownPassthrough(t *testing.T) {
	got, err := Parse("readme.md", []byte("# Title\n\nbody"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(got, "# Title") {
		t.Error("markdown should pass through unmodified")
	}
}

func TestParse_CSV(t *testing.T) {
	data := []byte("name,age\nalice,30\nbob,25\n")
	got, err := Parse("people.csv", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(got, "alice, 30") {
		t.Errorf("rows should flatten to comma-joined lines, got %q", got)
	}
	if len(strings.Split(strings.TrimSpace(got), "\n")) != 3 {
		t.Errorf("expected one line per record, got %q", got)
	}
}

func TestParse_CSVRaggedRows(t *testing.T) {
	data := []byte("a,b,c\nd,e\nf\n")
	if _, err := Parse("ragged.csv", data); err != nil {
		t.Errorf("ragged rows should be tolerated: %v", err)
	}
}

func TestParse_HTMLStripsMarkup(t *testing.T) {
	data := []byte(`<html><head><style>body{color:red}</style><script>alert(1)</script></head>
<body><h1>Heading</h1><p>Paragraph text.</p></body></html>`)
	got, err := Parse("page.html", data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(got, "Heading") || !strings.Contains(got, "Paragraph text.") {
		t.Errorf("visible text missing: %q", got)
	}
	if strings.Contains(got, "alert(1)") {
		t.Error("script content should be stripped")
	}
	if strings.Contains(got, "color:red") {
		t.Error("style content should be stripped")
	}
}

func TestParse_UnsupportedType(t *testing.T) {
	_, err := Parse("image.png", []byte("data"))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("got %v, want ErrUnsupportedType", err)
	}
}

func TestParse_CorruptPDF(t *testing.T) {
	if _, err := Parse("broken.pdf", []byte("not a pdf at all")); err == nil {
		t.Error("expected error for corrupt pdf")
	}
}
