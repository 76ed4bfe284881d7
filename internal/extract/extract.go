// Package extract turns chunk text into knowledge-graph entities and
// relations by prompting a generation model for constrained JSON.
//
// LLM output carries no well-formedness guarantee, so parsing never fails
// hard: malformed output degrades to an empty, tagged result and indexing
// continues. Text stays searchable even when graph enrichment fails.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Generator is the generation capability the extractor depends on.
// Implemented by GenkitGenerator in production and by mocks in tests.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Entity is one extracted knowledge-graph node candidate.
type Entity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Relation is one extracted edge candidate between two named entities.
type Relation struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"relation"`
}

// Result is the tagged outcome of one extraction call. When Malformed is
// set, Raw holds the unparsable model output and both lists are empty.
type Result struct {
	Entities  []Entity
	Relations []Relation
	Malformed bool
	Raw       string
}

// maxExtractionInput caps how much chunk text is sent per call.
const maxExtractionInput = 4000

// maxResponseBytes limits response size before JSON parsing.
const maxResponseBytes = 16 * 1024

// maxNameLength caps entity names and relation labels.
const maxNameLength = 100

// extractionPrompt asks for entities and relations in strict JSON.
const extractionPrompt = `Extract entities and relationships from the following text.

ENTITY TYPES:
- PERSON: People mentioned by name
- ORG: Companies, organizations, institutions
- TECHNOLOGY: Programming languages, frameworks, tools, libraries
- CONCEPT: Technical concepts, methodologies, ideas
- LOCATION: Places, countries, cities
- DATE: Specific dates or time periods

RELATIONSHIP TYPES:
- RELATED_TO: General relationship
- CREATED_BY: Something was created/founded by someone
- WORKS_AT: Person works at organization
- USES: Something uses/depends on something else
- PART_OF: Something is part of something larger

TEXT:
%s

Respond ONLY with valid JSON in this exact format:
{
  "entities": [
    {"name": "entity name", "type": "TYPE", "description": "brief description"}
  ],
  "relations": [
    {"from": "entity1 name", "to": "entity2 name", "relation": "RELATION_TYPE"}
  ]
}

Rules:
- Normalize entity names (e.g., "Python" not "python language")
- Only extract clearly mentioned entities
- Keep descriptions brief (max 20 words)
- Only include confident relations
- Return empty arrays if no entities found`

// Extractor extracts entities and relations from chunk text.
type Extractor struct {
	gen    Generator
	logger *slog.Logger
}

// New creates an Extractor. A nil logger falls back to slog.Default().
func New(gen Generator, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gen: gen, logger: logger}
}

// Extract runs one extraction call over text. The returned error covers
// transport failures only (timeout, rate limit); unparsable model output is
// reported through Result.Malformed, never as an error.
func (e *Extractor) Extract(ctx context.Context, text string) (Result, error) {
	if len(strings.TrimSpace(text)) < 10 {
		return Result{}, nil
	}
	if len(text) > maxExtractionInput {
		text = text[:maxExtractionInput] + "..."
	}

	raw, err := e.gen.Generate(ctx, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		return Result{}, fmt.Errorf("extraction generate: %w", err)
	}

	res := parseResponse(raw)
	if res.Malformed {
		e.logger.Warn("malformed extraction output, degrading to zero entities",
			"response_bytes", len(raw))
	}
	return res, nil
}

// parseResponse recovers the JSON object from model output and validates it.
func parseResponse(raw string) Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}
	}
	if len(text) > maxResponseBytes {
		return Result{Malformed: true, Raw: truncate(text, 200)}
	}

	text = stripCodeFences(text)

	// Recover from prose before/after the object.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Result{Malformed: true, Raw: truncate(text, 200)}
	}
	text = text[start : end+1]

	var payload struct {
		Entities  []Entity   `json:"entities"`
		Relations []Relation `json:"relations"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return Result{Malformed: true, Raw: truncate(text, 200)}
	}

	var res Result
	for _, ent := range payload.Entities {
		name := NormalizeName(ent.Name)
		if name == "" || ent.Type == "" {
			continue
		}
		if len(ent.Description) > maxNameLength {
			ent.Description = ent.Description[:maxNameLength]
		}
		res.Entities = append(res.Entities, Entity{
			Name:        name,
			Type:        strings.ToUpper(strings.TrimSpace(ent.Type)),
			Description: ent.Description,
		})
	}
	for _, rel := range payload.Relations {
		from := NormalizeName(rel.From)
		to := NormalizeName(rel.To)
		if from == "" || to == "" {
			continue
		}
		label := strings.ToUpper(strings.TrimSpace(rel.Label))
		if label == "" {
			label = "RELATED_TO"
		}
		if len(label) > maxNameLength {
			label = label[:maxNameLength]
		}
		res.Relations = append(res.Relations, Relation{From: from, To: to, Label: label})
	}
	return res
}

// NormalizeName canonicalizes an entity name: whitespace collapsed,
// all-caps/all-lower names title-cased, length capped.
func NormalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	if name == strings.ToUpper(name) || name == strings.ToLower(name) {
		name = titleCase(name)
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// stripCodeFences removes ```json ... ``` wrapping from model output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// truncate shortens s to at most n bytes for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GenkitGenerator adapts a genkit model to the Generator interface.
type GenkitGenerator struct {
	g     *genkit.Genkit
	model string
}

// NewGenkitGenerator creates a Generator backed by the named genkit model.
func NewGenkitGenerator(g *genkit.Genkit, modelName string) *GenkitGenerator {
	return &GenkitGenerator{g: g, model: modelName}
}

// Generate executes one generation call and returns the text response.
func (gg *GenkitGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.model),
		ai.WithPrompt(prompt),
	)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}
	return resp.Text(), nil
}
