package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/brainbox0/brainbox/internal/retriever"
)

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Answer is a synthesized response with the chunks it was grounded on.
type Answer struct {
	SessionID uuid.UUID          `json:"session_id"`
	Text      string             `json:"text"`
	Sources   []retriever.Result `json:"sources"`
}

const noKnowledgeReply = "I don't have anything about that in the knowledge base yet."

// Answer retrieves context for the question and asks the model to respond
// using only that context. Persona and skill text come from the session
// value, so concurrent sessions cannot bleed into each other.
func (b *Brain) Answer(ctx context.Context, session Context, question string, opts ...retriever.Option) (*Answer, error) {
	if b.generator == nil {
		return nil, errors.New("brain: answer generation not configured")
	}

	sources, err := b.retriever.Retrieve(ctx, question, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	if len(sources) == 0 {
		return &Answer{SessionID: session.SessionID(), Text: noKnowledgeReply}, nil
	}

	text, err := b.generator.Generate(ctx, buildAnswerPrompt(session, question, sources))
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &Answer{
		SessionID: session.SessionID(),
		Text:      strings.TrimSpace(text),
		Sources:   sources,
	}, nil
}

func buildAnswerPrompt(session Context, question string, sources []retriever.Result) string {
	var sb strings.Builder
	if persona := session.Attribute("persona"); persona != "" {
		sb.WriteString(persona)
		sb.WriteString("\n\n")
	}
	if skill := session.Attribute("skill"); skill != "" {
		sb.WriteString(skill)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Answer the question using only the notes below. ")
	sb.WriteString("If the notes do not contain the answer, say so.\n\n")
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] (%s)\n%s\n\n", i+1, src.Source, src.Text)
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}
