// Package chunker splits normalized document text into overlapping chunks
// with stable, content-addressed identity.
//
// Splitting prefers paragraph boundaries, falls back to sentence boundaries,
// and finally to fixed-size word windows when no boundary fits the token
// budget. Chunking is a pure function: identical input text and configuration
// always produce identical chunk boundaries and therefore identical chunk IDs.
package chunker

import (
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/brainbox0/brainbox/internal/knowledge"
)

// ErrEmptyContent is returned when the normalized text is blank.
var ErrEmptyContent = errors.New("chunker: empty content")

// Default chunking parameters, in estimated tokens.
const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 64
)

// Config controls chunking behavior.
type Config struct {
	MaxTokens     int // maximum estimated tokens per chunk
	OverlapTokens int // desired overlap between consecutive chunks
}

// Chunker converts document text into store-ready chunks.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration. Zero-value fields are
// replaced with defaults; an overlap at or above the max is clamped to half
// the max so assembly always makes forward progress.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.OverlapTokens < 0 {
		cfg.OverlapTokens = DefaultOverlapTokens
	}
	if cfg.OverlapTokens >= cfg.MaxTokens {
		cfg.OverlapTokens = cfg.MaxTokens / 2
	}
	return &Chunker{cfg: cfg}
}

// span is a half-open byte range [start, end) within the document text.
type span struct {
	start  int
	end    int
	tokens int
}

// Split chunks text into an ordered sequence of chunks owned by documentID.
//
// Invariants: every chunk's TokenCount is at most MaxTokens; consecutive
// chunks share boundary-snapped trailing/leading content whose estimated
// token count never exceeds OverlapTokens; each chunk's Text is exactly
// text[Offset : Offset+len(Text)].
func (c *Chunker) Split(documentID, text string) ([]knowledge.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyContent
	}

	units := c.segment(text)
	if len(units) == 0 {
		return nil, ErrEmptyContent
	}

	var chunks []knowledge.Chunk
	i := 0
	for i < len(units) {
		// Greedily take units while the token budget allows. The first
		// unit is always taken; segment() guarantees it fits MaxTokens.
		j := i
		tokens := 0
		for j < len(units) && (j == i || tokens+units[j].tokens <= c.cfg.MaxTokens) {
			tokens += units[j].tokens
			j++
		}

		start := units[i].start
		end := units[j-1].end
		body := text[start:end]
		chunks = append(chunks, knowledge.Chunk{
			ID:         knowledge.NewChunkID(documentID, start, end-start),
			DocumentID: documentID,
			Text:       body,
			Offset:     start,
			TokenCount: EstimateTokens(body),
			Index:      len(chunks),
		})

		if j >= len(units) {
			break
		}

		// Snap the next chunk's start back over trailing units until the
		// overlap budget is spent. Never back past i+1: the next chunk
		// must start strictly after the current one.
		k := j
		overlap := 0
		for k > i+1 && overlap+units[k-1].tokens <= c.cfg.OverlapTokens {
			overlap += units[k-1].tokens
			k--
		}
		i = k
	}

	return chunks, nil
}

// segment breaks text into boundary units that each fit within MaxTokens:
// paragraphs where possible, sentences for oversized paragraphs, fixed word
// windows for oversized sentences.
func (c *Chunker) segment(text string) []span {
	var units []span
	for _, para := range paragraphSpans(text) {
		if para.tokens <= c.cfg.MaxTokens {
			units = append(units, para)
			continue
		}
		for _, sent := range sentenceSpans(text, para) {
			if sent.tokens <= c.cfg.MaxTokens {
				units = append(units, sent)
				continue
			}
			units = append(units, c.windowSpans(text, sent)...)
		}
	}
	return units
}

// windowSpans slices an oversized sentence into fixed-size word windows.
func (c *Chunker) windowSpans(text string, s span) []span {
	words := wordSpans(text, s)
	if len(words) == 0 {
		return nil
	}
	// tokens ~ words * 1.3, so the largest window is MaxTokens/1.3 words.
	maxWords := int(float64(c.cfg.MaxTokens) / tokensPerWord)
	if maxWords < 1 {
		maxWords = 1
	}

	var out []span
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		w := span{start: words[start].start, end: words[end-1].end}
		w.tokens = EstimateTokens(text[w.start:w.end])
		out = append(out, w)
	}
	return out
}

// tokensPerWord is the word-based token estimation factor.
const tokensPerWord = 1.3

// EstimateTokens approximates the token count of text using a word-based
// heuristic: tokens ~ words * 1.3.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * tokensPerWord))
}

// paragraphSpans locates blank-line separated paragraphs, trimmed of
// surrounding whitespace, with byte-accurate offsets.
func paragraphSpans(text string) []span {
	var spans []span
	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "\n\n")
		end := len(text)
		next := len(text)
		if idx >= 0 {
			end = i + idx
			next = i + idx + 2
		}
		if s, ok := trimSpan(text, i, end); ok {
			spans = append(spans, s)
		}
		i = next
	}
	return spans
}

// sentenceSpans splits the paragraph at sentence-terminating punctuation
// followed by whitespace or end of text.
func sentenceSpans(text string, para span) []span {
	var spans []span
	start := para.start
	for i := para.start; i < para.end; i++ {
		b := text[i]
		if b != '.' && b != '?' && b != '!' {
			continue
		}
		atEnd := i+1 >= para.end
		if !atEnd {
			n := text[i+1]
			if n != ' ' && n != '\n' && n != '\t' {
				continue
			}
		}
		if s, ok := trimSpan(text, start, i+1); ok {
			spans = append(spans, s)
		}
		start = i + 1
	}
	if s, ok := trimSpan(text, start, para.end); ok {
		spans = append(spans, s)
	}
	return spans
}

// wordSpans locates whitespace-separated words within s.
func wordSpans(text string, s span) []span {
	var words []span
	i := s.start
	for i < s.end {
		for i < s.end && unicode.IsSpace(rune(text[i])) {
			i++
		}
		if i >= s.end {
			break
		}
		start := i
		for i < s.end && !unicode.IsSpace(rune(text[i])) {
			i++
		}
		words = append(words, span{start: start, end: i})
	}
	return words
}

// trimSpan shrinks [start, end) to exclude surrounding whitespace and
// computes the token estimate. Returns false for blank spans.
func trimSpan(text string, start, end int) (span, bool) {
	for start < end && unicode.IsSpace(rune(text[start])) {
		start++
	}
	for end > start && unicode.IsSpace(rune(text[end-1])) {
		end--
	}
	if start >= end {
		return span{}, false
	}
	return span{start: start, end: end, tokens: EstimateTokens(text[start:end])}, true
}
