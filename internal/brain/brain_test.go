package brain

import (
	"context"
	"errors"
	"testing"

	"github.com/brainbox0/brainbox/internal/indexer"
	"github.com/brainbox0/brainbox/internal/knowledge"
	"github.com/brainbox0/brainbox/internal/ledger"
	"github.com/brainbox0/brainbox/internal/normalize"
	"github.com/brainbox0/brainbox/internal/retriever"
)

type fakeNormalizer struct {
	err  error
	last knowledge.SourceType
}

func (f *fakeNormalizer) Normalize(_ context.Context, _ string, st knowledge.SourceType, raw string) (normalize.Result, error) {
	f.last = st
	if f.err != nil {
		return normalize.Result{}, f.err
	}
	return normalize.Result{Text: raw, Metadata: map[string]string{}}, nil
}

type fakeIndexer struct {
	docs []knowledge.Document
}

func (f *fakeIndexer) Index(_ context.Context, doc knowledge.Document) (indexer.Outcome, error) {
	f.docs = append(f.docs, doc)
	return indexer.Outcome{DocumentID: doc.ID, Status: indexer.StatusComplete, ChunkCount: 1}, nil
}

type fakeRetriever struct{ results []retriever.Result }

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ ...retriever.Option) ([]retriever.Result, error) {
	return f.results, nil
}

type fakeDocs struct {
	chunkIDs []string
	deleted  []string
}

func (f *fakeDocs) DeleteDocument(_ context.Context, id string) ([]string, error) {
	f.deleted = append(f.deleted, id)
	return f.chunkIDs, nil
}

func (f *fakeDocs) Counts(_ context.Context) (int64, int64, error) { return 2, 5, nil }

type fakeGraphStore struct{ removed [][]string }

func (f *fakeGraphStore) RemoveProvenance(_ context.Context, ids []string) error {
	f.removed = append(f.removed, ids)
	return nil
}

func (f *fakeGraphStore) Counts(_ context.Context) (int64, int64, error) { return 7, 3, nil }

type fakeLedgerStore struct{ deleted []string }

func (f *fakeLedgerStore) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeLedgerStore) CountByState(_ context.Context) (map[ledger.State]int64, error) {
	return map[ledger.State]int64{ledger.StateComplete: 2}, nil
}

func newTestBrain(t *testing.T, norm *fakeNormalizer, ix *fakeIndexer, docs *fakeDocs, g *fakeGraphStore, rec *fakeLedgerStore) *Brain {
	t.Helper()
	b, err := New(Deps{
		Normalizer: norm,
		Indexer:    ix,
		Retriever:  &fakeRetriever{},
		Documents:  docs,
		Graph:      g,
		Records:    rec,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestIndexContent_DefaultsToText(t *testing.T) {
	norm, ix := &fakeNormalizer{}, &fakeIndexer{}
	b := newTestBrain(t, norm, ix, nil, nil, nil)

	out, err := b.IndexContent(context.Background(), "note.txt", "", "some note content")
	if err != nil {
		t.Fatal(err)
	}
	if norm.last != knowledge.SourceText {
		t.Errorf("source type = %q, want text default", norm.last)
	}
	if out.Status != indexer.StatusComplete {
		t.Errorf("status = %q", out.Status)
	}
	if len(ix.docs) != 1 || ix.docs[0].Source != "note.txt" {
		t.Errorf("indexed docs = %+v", ix.docs)
	}
}

func TestIndexContent_RejectsUnknownSourceType(t *testing.T) {
	b := newTestBrain(t, &fakeNormalizer{}, &fakeIndexer{}, nil, nil, nil)
	if _, err := b.IndexContent(context.Background(), "x", "spreadsheet", "raw"); !errors.Is(err, ErrInvalidSourceType) {
		t.Errorf("error = %v, want ErrInvalidSourceType", err)
	}
}

func TestIndexContent_NormalizeErrorPropagates(t *testing.T) {
	norm := &fakeNormalizer{err: normalize.ErrExtractionFailed}
	ix := &fakeIndexer{}
	b := newTestBrain(t, norm, ix, nil, nil, nil)
	if _, err := b.IndexContent(context.Background(), "x", "text", "  "); !errors.Is(err, normalize.ErrExtractionFailed) {
		t.Errorf("error = %v, want ErrExtractionFailed", err)
	}
	if len(ix.docs) != 0 {
		t.Error("failed normalization must not reach the indexer")
	}
}

func TestPurge_CascadesThroughAllStores(t *testing.T) {
	docs := &fakeDocs{chunkIDs: []string{"c1", "c2"}}
	g := &fakeGraphStore{}
	rec := &fakeLedgerStore{}
	b := newTestBrain(t, &fakeNormalizer{}, &fakeIndexer{}, docs, g, rec)

	if err := b.Purge(context.Background(), "doc_1"); err != nil {
		t.Fatal(err)
	}
	if len(docs.deleted) != 1 || docs.deleted[0] != "doc_1" {
		t.Errorf("deleted docs = %v", docs.deleted)
	}
	if len(g.removed) != 1 || len(g.removed[0]) != 2 {
		t.Errorf("graph provenance removal = %v, want the 2 chunk IDs", g.removed)
	}
	if len(rec.deleted) != 1 {
		t.Errorf("ledger deletions = %v", rec.deleted)
	}
}

func TestPurge_EmptyDocumentSkipsGraph(t *testing.T) {
	docs := &fakeDocs{chunkIDs: nil}
	g := &fakeGraphStore{}
	b := newTestBrain(t, &fakeNormalizer{}, &fakeIndexer{}, docs, g, &fakeLedgerStore{})
	if err := b.Purge(context.Background(), "doc_1"); err != nil {
		t.Fatal(err)
	}
	if len(g.removed) != 0 {
		t.Error("no chunks means no graph provenance to remove")
	}
}

func TestStats_AggregatesAllStores(t *testing.T) {
	b := newTestBrain(t, &fakeNormalizer{}, &fakeIndexer{}, &fakeDocs{}, &fakeGraphStore{}, &fakeLedgerStore{})
	s, err := b.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Documents != 2 || s.Chunks != 5 || s.Entities != 7 || s.Relations != 3 {
		t.Errorf("stats = %+v", s)
	}
	if s.ByState[ledger.StateComplete] != 2 {
		t.Errorf("by state = %v", s.ByState)
	}
}

func TestContext_Immutable(t *testing.T) {
	base := NewContext()
	derived := base.WithAttribute("persona", "researcher")
	if base.Attribute("persona") != "" {
		t.Error("WithAttribute must not mutate the original context")
	}
	if derived.Attribute("persona") != "researcher" {
		t.Error("derived context should carry the attribute")
	}
	if base.SessionID() != derived.SessionID() {
		t.Error("derived context keeps the session ID")
	}
	if NewContext().SessionID() == base.SessionID() {
		t.Error("new contexts must get fresh session IDs")
	}
}
