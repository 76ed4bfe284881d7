package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceType identifies where a document's content came from.
type SourceType string

// Known source types. The normalizer maps MIME types onto these.
const (
	SourceText  SourceType = "text"
	SourcePDF   SourceType = "pdf"
	SourceImage SourceType = "image"
	SourceAudio SourceType = "audio"
	SourceURL   SourceType = "url"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceText, SourcePDF, SourceImage, SourceAudio, SourceURL:
		return true
	}
	return false
}

// Document is one ingested unit of normalized text. Documents are immutable
// once indexed: re-ingesting identical content produces the same ID and is a
// no-op at the indexer level.
type Document struct {
	ID         string
	Source     string // source label (filename, URL, ...)
	SourceType SourceType
	Text       string
	RawLength  int
	Metadata   map[string]string
	CreatedAt  time.Time
}

// Chunk is a contiguous slice of a document's text, the unit of embedding
// and retrieval. A chunk belongs to exactly one document.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Offset     int // byte offset of Text within the document
	TokenCount int
	Index      int // position within the document's chunk sequence
}

// NewDocumentID derives the content-addressed document identifier from the
// source label and the normalized text. Identical (source, text) pairs always
// hash to the same ID, which is the idempotency backbone for the pipeline.
func NewDocumentID(source, normalizedText string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(normalizedText))
	return "doc_" + hex.EncodeToString(h.Sum(nil)[:16])
}

// NewChunkID derives a chunk identifier from its owning document and its
// position. Deterministic: chunking the same document the same way yields
// the same chunk IDs across runs.
func NewChunkID(documentID string, offset, length int) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%d", documentID, offset, length))
	return "chunk_" + hex.EncodeToString(h[:16])
}
