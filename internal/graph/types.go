package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// ErrEntityNotFound indicates no entity matched a name above the
// resolution threshold. Callers surface this as an empty result.
var ErrEntityNotFound = errors.New("graph: entity not found")

// Entity is a deduplicated knowledge-graph node. Weight counts distinct
// chunk observations contributing evidence for the entity.
type Entity struct {
	ID          string
	Name        string
	Type        string
	Description string
	Weight      int64
	FirstSeenAt time.Time
}

// Relation is a weighted, evidence-backed edge between two entities.
// Provenance holds the chunk IDs supporting the relation; Weight equals
// the number of distinct supporting chunks.
type Relation struct {
	ID         string
	SourceID   string
	TargetID   string
	Label      string
	Weight     int64
	Provenance []string
}

// Subgraph is a set of entities plus the relations among them, as returned
// by neighborhood traversal.
type Subgraph struct {
	Entities  []Entity
	Relations []Relation
}

// CanonicalKey is the dedup key for entities: case-insensitive canonical
// name plus type. Two observed mentions with the same key merge into one
// entity record.
func CanonicalKey(name, entityType string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x00" + strings.ToLower(strings.TrimSpace(entityType))
}

// NewEntityID derives the stable entity identifier from the canonical key.
func NewEntityID(name, entityType string) string {
	h := sha256.Sum256([]byte(CanonicalKey(name, entityType)))
	return "ent_" + hex.EncodeToString(h[:16])
}

// NewRelationID derives the stable relation identifier from the
// (source, target, label) triple.
func NewRelationID(sourceID, targetID, label string) string {
	h := sha256.Sum256([]byte(sourceID + "\x00" + targetID + "\x00" + strings.ToUpper(label)))
	return "rel_" + hex.EncodeToString(h[:16])
}
