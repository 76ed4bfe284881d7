package normalize

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/brainbox0/brainbox/internal/knowledge"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"preserves paragraph breaks", "first para\n\nsecond para", "first para\n\nsecond para"},
		{"drops blank line runs", "a\n\n\n\n\nb", "a\n\nb"},
		{"windows newlines", "a\r\n\r\nb", "a\n\nb"},
		{"empty", "   \n\n  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanText(tt.in); got != tt.want {
				t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Text(t *testing.T) {
	n := New(nil, nil)
	res, err := n.Normalize(context.Background(), "note.txt", knowledge.SourceText, "  hello   world  ")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "hello world" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestNormalize_EmptyTextFails(t *testing.T) {
	n := New(nil, nil)
	if _, err := n.Normalize(context.Background(), "note.txt", knowledge.SourceText, "   "); !errors.Is(err, ErrExtractionFailed) {
		t.Errorf("error = %v, want ErrExtractionFailed", err)
	}
}

func TestNormalize_BinaryFormatsUnsupported(t *testing.T) {
	n := New(nil, nil)
	for _, st := range []knowledge.SourceType{knowledge.SourcePDF, knowledge.SourceImage, knowledge.SourceAudio} {
		if _, err := n.Normalize(context.Background(), "file", st, "raw"); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%s: error = %v, want ErrUnsupportedFormat", st, err)
		}
	}
}

func TestNormalize_URLFetch(t *testing.T) {
	page := `<!DOCTYPE html><html><head><title>Test Page</title></head><body>
		<nav>skip this</nav>
		<article><h1>Heading</h1><p>` + strings.Repeat("Readable article body text with enough words to matter. ", 20) + `</p></article>
		<footer>skip this too</footer></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	n := New(srv.Client(), nil)
	res, err := n.Normalize(context.Background(), srv.URL, knowledge.SourceURL, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "Readable article body") {
		t.Errorf("extracted text missing article body: %q", truncate(res.Text, 120))
	}
	if strings.Contains(res.Text, "skip this") {
		t.Error("boilerplate should be stripped")
	}
}

func TestNormalize_URLBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	n := New(srv.Client(), nil)
	if _, err := n.Normalize(context.Background(), srv.URL, knowledge.SourceURL, ""); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestNormalize_NonHTTPURL(t *testing.T) {
	n := New(nil, nil)
	if _, err := n.Normalize(context.Background(), "ftp://example.com/x", knowledge.SourceURL, ""); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExtractHTML_FallbackWithoutArticle(t *testing.T) {
	page := `<html><head><title>Plain</title></head><body>
		<script>var x = 1;</script>
		<div>just some div text</div></body></html>`
	n := New(nil, nil)
	u, _ := url.Parse("http://example.com/")
	res, err := n.ExtractHTML([]byte(page), u)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "just some div text") {
		t.Errorf("text = %q", res.Text)
	}
	if strings.Contains(res.Text, "var x") {
		t.Error("script content should be stripped")
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
