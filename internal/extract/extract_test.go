package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brainbox0/brainbox/internal/log"
)

// mockGenerator returns a canned response or error.
type mockGenerator struct {
	response  string
	err       error
	callCount int
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.callCount++
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

const validResponse = `{
  "entities": [
    {"name": "Weaviate", "type": "TECHNOLOGY", "description": "vector database"},
    {"name": "kuzu", "type": "TECHNOLOGY", "description": "graph database"}
  ],
  "relations": [
    {"from": "Weaviate", "to": "kuzu", "relation": "uses"}
  ]
}`

func TestExtract_WellFormed(t *testing.T) {
	gen := &mockGenerator{response: validResponse}
	e := New(gen, log.NewNop())

	res, err := e.Extract(context.Background(), "Weaviate uses Kuzu for graph queries.")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Malformed {
		t.Fatal("result marked malformed for valid JSON")
	}
	if len(res.Entities) != 2 {
		t.Fatalf("got %d entities, want 2", len(res.Entities))
	}
	if res.Entities[0].Name != "Weaviate" {
		t.Errorf("entity name = %q, want Weaviate", res.Entities[0].Name)
	}
	// All-lowercase names are title-cased during normalization.
	if res.Entities[1].Name != "Kuzu" {
		t.Errorf("entity name = %q, want Kuzu", res.Entities[1].Name)
	}
	if len(res.Relations) != 1 {
		t.Fatalf("got %d relations, want 1", len(res.Relations))
	}
	if res.Relations[0].Label != "USES" {
		t.Errorf("relation label = %q, want USES", res.Relations[0].Label)
	}
}

func TestExtract_CodeFenced(t *testing.T) {
	gen := &mockGenerator{response: "```json\n" + validResponse + "\n```"}
	e := New(gen, log.NewNop())

	res, err := e.Extract(context.Background(), "Weaviate uses Kuzu for graph queries.")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Malformed || len(res.Entities) != 2 {
		t.Errorf("code-fenced JSON not recovered: malformed=%v entities=%d",
			res.Malformed, len(res.Entities))
	}
}

func TestExtract_ProseAroundJSON(t *testing.T) {
	gen := &mockGenerator{response: "Sure, here is the result:\n" + validResponse + "\nHope that helps!"}
	e := New(gen, log.NewNop())

	res, err := e.Extract(context.Background(), "Weaviate uses Kuzu for graph queries.")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.Malformed || len(res.Entities) != 2 {
		t.Errorf("JSON inside prose not recovered: malformed=%v entities=%d",
			res.Malformed, len(res.Entities))
	}
}

func TestExtract_MalformedIsSoft(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no json at all", "I could not find any entities."},
		{"broken json", `{"entities": [{"name": "X"`},
		{"oversized", strings.Repeat("x", maxResponseBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{response: tt.response}
			e := New(gen, log.NewNop())

			res, err := e.Extract(context.Background(), "some chunk text here")
			if err != nil {
				t.Fatalf("malformed output must not be an error, got %v", err)
			}
			if !res.Malformed {
				t.Error("result not tagged malformed")
			}
			if len(res.Entities) != 0 || len(res.Relations) != 0 {
				t.Error("malformed result must carry zero entities and relations")
			}
		})
	}
}

func TestExtract_TransportErrorPropagates(t *testing.T) {
	wantErr := errors.New("rate limited")
	gen := &mockGenerator{err: wantErr}
	e := New(gen, log.NewNop())

	_, err := e.Extract(context.Background(), "some chunk text here")
	if !errors.Is(err, wantErr) {
		t.Errorf("Extract() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestExtract_SkipsTrivialText(t *testing.T) {
	gen := &mockGenerator{response: validResponse}
	e := New(gen, log.NewNop())

	res, err := e.Extract(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if gen.callCount != 0 {
		t.Error("trivial text should not reach the generator")
	}
	if len(res.Entities) != 0 {
		t.Error("trivial text should yield no entities")
	}
}

func TestParseResponse_DropsIncompleteRows(t *testing.T) {
	res := parseResponse(`{
		"entities": [{"name": "", "type": "ORG"}, {"name": "Valid", "type": ""}, {"name": "Alice", "type": "PERSON"}],
		"relations": [{"from": "", "to": "Alice"}, {"from": "Alice", "to": "Bob"}]
	}`)
	if res.Malformed {
		t.Fatal("unexpectedly malformed")
	}
	if len(res.Entities) != 1 || res.Entities[0].Name != "Alice" {
		t.Errorf("incomplete entities not dropped: %+v", res.Entities)
	}
	if len(res.Relations) != 1 {
		t.Errorf("incomplete relations not dropped: %+v", res.Relations)
	}
	if res.Relations[0].Label != "RELATED_TO" {
		t.Errorf("missing label should default to RELATED_TO, got %q", res.Relations[0].Label)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  alice   smith ", "Alice Smith"},
		{"ALICE", "Alice"},
		{"Go", "Go"},
		{"pgVector", "pgVector"}, // mixed case preserved
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
