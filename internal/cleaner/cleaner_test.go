package cleaner

import (
	"strings"
	"testing"
)

func TestToMarkdownKeepsTextAndLinks(t *testing.T) {
	html := `<html><body><h1>Title</h1><p>Some <a href="https://example.com">link</a> text.</p></body></html>`
	got := ToMarkdown(html)
	if !strings.Contains(got, "Title") {
		t.Fatalf("expected heading text, got %q", got)
	}
	if !strings.Contains(got, "https://example.com") {
		t.Fatalf("expected link target preserved, got %q", got)
	}
}

func TestToMarkdownDropsImages(t *testing.T) {
	html := `<p>before <img src="https://example.com/pic.png" alt="pic"> after</p>`
	got := ToMarkdown(html)
	if strings.Contains(got, "pic.png") {
		t.Fatalf("expected image dropped, got %q", got)
	}
	if !strings.Contains(got, "before") || !strings.Contains(got, "after") {
		t.Fatalf("expected surrounding text kept, got %q", got)
	}
}

func TestToMarkdownEmptyInput(t *testing.T) {
	if got := ToMarkdown(""); got != "" {
		t.Fatalf("expected empty output for empty input, got %q", got)
	}
	if got := ToMarkdown("   \n\t"); got != "" {
		t.Fatalf("expected empty output for whitespace input, got %q", got)
	}
}

func TestToMarkdownTrimsWhitespace(t *testing.T) {
	got := ToMarkdown("<p>hello</p>")
	if got != "hello" {
		t.Fatalf("expected trimmed markdown, got %q", got)
	}
}
