package explorer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/brainbox0/brainbox/internal/graph"
)

// fakeGraph wires a small in-memory graph behind the reader interface.
type fakeGraph struct {
	entities  map[string]graph.Entity // keyed by lowercase name
	relations []graph.Relation
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{entities: make(map[string]graph.Entity)}
}

func (f *fakeGraph) addEntity(name, entityType string) string {
	id := graph.NewEntityID(name, entityType)
	f.entities[strings.ToLower(name)] = graph.Entity{ID: id, Name: name, Type: entityType, Weight: 1}
	return id
}

func (f *fakeGraph) addRelation(srcID, dstID, label string, weight int64) {
	f.relations = append(f.relations, graph.Relation{
		ID:       graph.NewRelationID(srcID, dstID, label),
		SourceID: srcID,
		TargetID: dstID,
		Label:    label,
		Weight:   weight,
	})
}

func (f *fakeGraph) FindEntity(_ context.Context, name string) (*graph.Entity, error) {
	if ent, ok := f.entities[strings.ToLower(name)]; ok {
		return &ent, nil
	}
	return nil, graph.ErrEntityNotFound
}

func (f *fakeGraph) EntitiesByIDs(_ context.Context, ids []string) ([]graph.Entity, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []graph.Entity
	for _, ent := range f.entities {
		if want[ent.ID] {
			out = append(out, ent)
		}
	}
	return out, nil
}

func (f *fakeGraph) AllRelations(_ context.Context) ([]graph.Relation, error) {
	return f.relations, nil
}

func (f *fakeGraph) MostConnected(_ context.Context, limit int) ([]graph.Entity, error) {
	var out []graph.Entity
	for _, ent := range f.entities {
		out = append(out, ent)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeGenerator struct {
	response string
	err      error
	prompt   string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.response, f.err
}

// chain builds a -> b -> c -> d with the given edge weight.
func chain(f *fakeGraph, weight int64, names ...string) []string {
	ids := make([]string, len(names))
	for i, n := range names {
		ids[i] = f.addEntity(n, "CONCEPT")
	}
	for i := 0; i+1 < len(ids); i++ {
		f.addRelation(ids[i], ids[i+1], "RELATED_TO", weight)
	}
	return ids
}

func TestNeighbors_DepthBound(t *testing.T) {
	f := newFakeGraph()
	chain(f, 5, "a", "b", "c", "d")
	e, err := New(f, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := e.Neighbors(context.Background(), "a", 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Entities) != 3 {
		t.Errorf("entities within 2 hops = %d, want 3 (a, b, c)", len(sub.Entities))
	}
	for _, ent := range sub.Entities {
		if ent.Name == "d" {
			t.Error("d is 3 hops away and should not appear")
		}
	}
}

func TestNeighbors_MinWeightFiltersWeakEdges(t *testing.T) {
	f := newFakeGraph()
	a := f.addEntity("a", "CONCEPT")
	strong := f.addEntity("strong", "CONCEPT")
	weak := f.addEntity("weak", "CONCEPT")
	f.addRelation(a, strong, "RELATED_TO", 3)
	f.addRelation(a, weak, "RELATED_TO", 1)

	e, _ := New(f, nil, nil)
	sub, err := e.Neighbors(context.Background(), "a", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, ent := range sub.Entities {
		if ent.ID == weak {
			t.Error("single-observation edge should be filtered out")
		}
	}
	if len(sub.Relations) != 1 {
		t.Errorf("relations = %d, want 1", len(sub.Relations))
	}
}

func TestNeighbors_UnknownEntity(t *testing.T) {
	e, _ := New(newFakeGraph(), nil, nil)
	if _, err := e.Neighbors(context.Background(), "ghost", 2, 1); !errors.Is(err, graph.ErrEntityNotFound) {
		t.Errorf("error = %v, want ErrEntityNotFound", err)
	}
}

func TestConnect_RanksShortestPathFirst(t *testing.T) {
	f := newFakeGraph()
	ids := chain(f, 2, "a", "b", "c")
	// Direct shortcut a -> c alongside the two-hop route.
	f.addRelation(ids[0], ids[2], "USES", 2)

	e, _ := New(f, nil, nil)
	conns, err := e.Connect(context.Background(), "a", "c", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 2 {
		t.Fatalf("paths = %d, want 2 (shortcut and a-b-c)", len(conns))
	}
	best := conns[0]
	if len(best.Relations) != 1 {
		t.Errorf("best path length = %d, want 1 via the shortcut", len(best.Relations))
	}
	if best.Path[0].Name != "a" || best.Path[len(best.Path)-1].Name != "c" {
		t.Errorf("path endpoints = %s..%s, want a..c", best.Path[0].Name, best.Path[len(best.Path)-1].Name)
	}
	if best.Novelty <= conns[1].Novelty {
		t.Errorf("shortcut novelty %f should beat the two-hop path %f", best.Novelty, conns[1].Novelty)
	}
}

func TestConnect_MaxDepthBoundsSearch(t *testing.T) {
	f := newFakeGraph()
	chain(f, 2, "a", "b", "c", "d", "e")
	e, _ := New(f, nil, nil)

	// a..e is 4 hops away; a bound of 2 must not surface it.
	conns, err := e.Connect(context.Background(), "a", "e", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 0 {
		t.Errorf("paths within 2 hops = %d, want none for a 4-hop route", len(conns))
	}

	conns, err = e.Connect(context.Background(), "a", "e", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 1 || len(conns[0].Relations) != 4 {
		t.Errorf("paths within 4 hops = %+v, want the single 4-hop route", conns)
	}
}

func TestConnect_ShorterQuieterPathScoresHigher(t *testing.T) {
	// Two-node direct link in a sparse graph.
	sparse := newFakeGraph()
	chain(sparse, 2, "x", "y")
	e1, _ := New(sparse, nil, nil)
	directPaths, err := e1.Connect(context.Background(), "x", "y", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(directPaths) != 1 {
		t.Fatalf("paths = %d, want 1", len(directPaths))
	}
	direct := directPaths[0]

	// Three-hop path through a hub with extra spokes.
	busy := newFakeGraph()
	ids := chain(busy, 2, "p", "hub", "q", "r")
	for _, spoke := range []string{"s1", "s2", "s3", "s4"} {
		sid := busy.addEntity(spoke, "CONCEPT")
		busy.addRelation(ids[1], sid, "RELATED_TO", 2)
	}
	e2, _ := New(busy, nil, nil)
	longPaths, err := e2.Connect(context.Background(), "p", "r", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(longPaths) != 1 {
		t.Fatalf("paths = %d, want 1", len(longPaths))
	}
	long := longPaths[0]

	if direct.Novelty <= long.Novelty {
		t.Errorf("direct sparse path novelty %f should beat hub path %f", direct.Novelty, long.Novelty)
	}
}

func TestConnect_DisconnectedComponents(t *testing.T) {
	f := newFakeGraph()
	chain(f, 2, "a", "b")
	chain(f, 2, "x", "y")
	e, _ := New(f, nil, nil)
	conns, err := e.Connect(context.Background(), "a", "y", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(conns) != 0 {
		t.Errorf("paths = %d, want none across disconnected components", len(conns))
	}
}

func TestIdeas_ParsesPairs(t *testing.T) {
	f := newFakeGraph()
	chain(f, 2, "Go", "Postgres")
	gen := &fakeGenerator{response: `Here are some thoughts.

IDEA: Build a migration linter.
EXPLANATION: Both tools already parse schema files.

IDEA: Cache query plans per release.
EXPLANATION: Plans rarely change between deploys.`}

	e, _ := New(f, gen, nil)
	ideas, err := e.Ideas(context.Background(), "Go", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(ideas) != 2 {
		t.Fatalf("ideas = %d, want 2", len(ideas))
	}
	if ideas[0].Text != "Build a migration linter." {
		t.Errorf("first idea = %q", ideas[0].Text)
	}
	if ideas[1].Explanation != "Plans rarely change between deploys." {
		t.Errorf("second explanation = %q", ideas[1].Explanation)
	}
	if !strings.Contains(gen.prompt, "Go") || !strings.Contains(gen.prompt, "Postgres") {
		t.Error("prompt should carry the neighborhood entities")
	}
}

func TestIdeas_TopicNotFound(t *testing.T) {
	e, _ := New(newFakeGraph(), &fakeGenerator{}, nil)
	if _, err := e.Ideas(context.Background(), "ghost", 3); !errors.Is(err, graph.ErrEntityNotFound) {
		t.Errorf("error = %v, want ErrEntityNotFound", err)
	}
}
