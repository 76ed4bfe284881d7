// Package explorer answers graph-shaped questions: what surrounds an
// entity, how two entities connect, and what unexpected ideas the graph
// suggests.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brainbox0/brainbox/internal/graph"
	"github.com/brainbox0/brainbox/internal/log"
)

const (
	// defaultDepth bounds neighborhood traversal.
	defaultDepth = 2
	// defaultMinWeight filters single-observation edges out of
	// neighborhoods; one mention is noise, two is evidence.
	defaultMinWeight = 2
	// defaultConnectDepth bounds path search between two entities.
	defaultConnectDepth = 3
	// maxConnectPaths caps how many paths Connect returns.
	maxConnectPaths = 5
	// maxIdeaEntities bounds how much graph context goes into an idea
	// prompt.
	maxIdeaEntities = 12
)

// GraphReader is the graph access the explorer needs.
type GraphReader interface {
	FindEntity(ctx context.Context, name string) (*graph.Entity, error)
	EntitiesByIDs(ctx context.Context, ids []string) ([]graph.Entity, error)
	AllRelations(ctx context.Context) ([]graph.Relation, error)
	MostConnected(ctx context.Context, limit int) ([]graph.Entity, error)
}

// Generator produces free text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Connection is a discovered path between two entities. Novelty rewards
// short paths through quiet corners of the graph: a two-hop link through
// low-degree entities scores higher than one through well-known hubs.
type Connection struct {
	Path      []graph.Entity
	Relations []graph.Relation
	Novelty   float64
}

// Idea is one generated suggestion grounded in graph context.
type Idea struct {
	Text        string
	Explanation string
}

// Explorer traverses the knowledge graph in memory. Personal knowledge
// bases are small enough that loading all edges per call stays cheap.
type Explorer struct {
	graph     GraphReader
	generator Generator
	logger    *log.Logger
}

func New(g GraphReader, generator Generator, logger *log.Logger) (*Explorer, error) {
	if g == nil {
		return nil, errors.New("explorer: graph reader is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Explorer{graph: g, generator: generator, logger: logger}, nil
}

// Neighbors returns the subgraph within depth hops of the named entity.
// Edges below minWeight are ignored; depth and minWeight fall back to
// defaults when non-positive.
func (e *Explorer) Neighbors(ctx context.Context, name string, depth int, minWeight int64) (*graph.Subgraph, error) {
	if depth <= 0 {
		depth = defaultDepth
	}
	if minWeight <= 0 {
		minWeight = defaultMinWeight
	}
	start, err := e.graph.FindEntity(ctx, name)
	if err != nil {
		return nil, err
	}
	adj, err := e.loadAdjacency(ctx, minWeight)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{start.ID: true}
	frontier := []string{start.ID}
	var crossed []graph.Relation
	seenRel := make(map[string]bool)

	for d := 0; d < depth && len(frontier) > 0; d++ {
		var next []string
		for _, id := range frontier {
			for _, rel := range adj[id] {
				if !seenRel[rel.ID] {
					seenRel[rel.ID] = true
					crossed = append(crossed, rel)
				}
				other := rel.SourceID
				if other == id {
					other = rel.TargetID
				}
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entities, err := e.graph.EntitiesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	return &graph.Subgraph{Entities: entities, Relations: crossed}, nil
}

// Connect enumerates simple paths between two named entities, shortest
// first, up to maxDepth hops. An empty slice means no path exists within
// the bound; only unresolvable entity names are errors.
func (e *Explorer) Connect(ctx context.Context, from, to string, maxDepth int) ([]Connection, error) {
	if maxDepth <= 0 {
		maxDepth = defaultConnectDepth
	}
	src, err := e.graph.FindEntity(ctx, from)
	if err != nil {
		return nil, err
	}
	dst, err := e.graph.FindEntity(ctx, to)
	if err != nil {
		return nil, err
	}
	if src.ID == dst.ID {
		return []Connection{{Path: []graph.Entity{*src}, Novelty: 1}}, nil
	}
	adj, err := e.loadAdjacency(ctx, 1)
	if err != nil {
		return nil, err
	}

	paths := findPaths(adj, src.ID, dst.ID, maxDepth)
	if len(paths) == 0 {
		return []Connection{}, nil
	}

	// One lookup for every entity on any path.
	idSet := map[string]bool{}
	for _, rels := range paths {
		for _, id := range pathEntityIDs(src.ID, rels) {
			idSet[id] = true
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	entities, err := e.graph.EntitiesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	connections := make([]Connection, 0, len(paths))
	for _, rels := range paths {
		ordered := orderByIDs(entities, pathEntityIDs(src.ID, rels))
		connections = append(connections, Connection{
			Path:      ordered,
			Relations: rels,
			Novelty:   novelty(len(rels), ordered, adj),
		})
	}
	sort.SliceStable(connections, func(i, j int) bool {
		return connections[i].Novelty > connections[j].Novelty
	})
	return connections, nil
}

// findPaths collects up to maxConnectPaths simple paths from src to dst
// by iterative deepening, so shorter paths are always found before longer
// ones.
func findPaths(adj map[string][]graph.Relation, src, dst string, maxDepth int) [][]graph.Relation {
	var found [][]graph.Relation
	var rels []graph.Relation
	onPath := map[string]bool{src: true}

	var dfs func(id string, limit int)
	dfs = func(id string, limit int) {
		for _, rel := range adj[id] {
			if len(found) >= maxConnectPaths {
				return
			}
			other := rel.SourceID
			if other == id {
				other = rel.TargetID
			}
			if onPath[other] {
				continue
			}
			rels = append(rels, rel)
			if other == dst {
				if len(rels) == limit {
					found = append(found, append([]graph.Relation(nil), rels...))
				}
			} else if len(rels) < limit {
				onPath[other] = true
				dfs(other, limit)
				delete(onPath, other)
			}
			rels = rels[:len(rels)-1]
		}
	}

	for limit := 1; limit <= maxDepth && len(found) < maxConnectPaths; limit++ {
		dfs(src, limit)
	}
	return found
}

// pathEntityIDs walks a relation sequence from src and returns the
// entity IDs visited, src included.
func pathEntityIDs(src string, rels []graph.Relation) []string {
	ids := []string{src}
	cur := src
	for _, rel := range rels {
		if rel.SourceID == cur {
			cur = rel.TargetID
		} else {
			cur = rel.SourceID
		}
		ids = append(ids, cur)
	}
	return ids
}

// Ideas asks the generator for cross-domain suggestions grounded in graph
// context: the neighborhood of a topic, or the graph's hubs when no topic
// is given.
func (e *Explorer) Ideas(ctx context.Context, topic string, n int) ([]Idea, error) {
	if e.generator == nil {
		return nil, errors.New("explorer: no generator configured")
	}
	if n <= 0 {
		n = 3
	}

	var entities []graph.Entity
	var relations []graph.Relation
	if topic != "" {
		sub, err := e.Neighbors(ctx, topic, defaultDepth, 1)
		if err != nil {
			return nil, err
		}
		entities, relations = sub.Entities, sub.Relations
	} else {
		hubs, err := e.graph.MostConnected(ctx, maxIdeaEntities)
		if err != nil {
			return nil, err
		}
		entities = hubs
	}
	if len(entities) == 0 {
		return nil, graph.ErrEntityNotFound
	}
	if len(entities) > maxIdeaEntities {
		entities = entities[:maxIdeaEntities]
	}

	prompt := buildIdeaPrompt(entities, relations, n)
	response, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate ideas: %w", err)
	}
	ideas := parseIdeas(response)
	if len(ideas) > n {
		ideas = ideas[:n]
	}
	e.logger.Debug("ideas generated", "topic", topic, "count", len(ideas))
	return ideas, nil
}

func (e *Explorer) loadAdjacency(ctx context.Context, minWeight int64) (map[string][]graph.Relation, error) {
	relations, err := e.graph.AllRelations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	adj := make(map[string][]graph.Relation)
	for _, rel := range relations {
		if rel.Weight < minWeight {
			continue
		}
		adj[rel.SourceID] = append(adj[rel.SourceID], rel)
		adj[rel.TargetID] = append(adj[rel.TargetID], rel)
	}
	return adj, nil
}

// novelty scores a path: shorter is better, and paths through low-degree
// entities beat paths through hubs.
func novelty(pathLen int, entities []graph.Entity, adj map[string][]graph.Relation) float64 {
	if pathLen == 0 || len(entities) == 0 {
		return 1
	}
	totalDegree := 0
	for _, ent := range entities {
		totalDegree += len(adj[ent.ID])
	}
	avgDegree := float64(totalDegree) / float64(len(entities))
	if avgDegree < 1 {
		avgDegree = 1
	}
	return 1/float64(pathLen) + 1/avgDegree
}

func buildIdeaPrompt(entities []graph.Entity, relations []graph.Relation, n int) string {
	var b strings.Builder
	b.WriteString("You are looking at part of a personal knowledge graph.\n\nEntities:\n")
	names := make(map[string]string, len(entities))
	for _, ent := range entities {
		names[ent.ID] = ent.Name
		fmt.Fprintf(&b, "- %s (%s)", ent.Name, ent.Type)
		if ent.Description != "" {
			fmt.Fprintf(&b, ": %s", ent.Description)
		}
		b.WriteString("\n")
	}
	if len(relations) > 0 {
		b.WriteString("\nRelations:\n")
		for _, rel := range relations {
			src, dst := names[rel.SourceID], names[rel.TargetID]
			if src == "" || dst == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s %s %s\n", src, rel.Label, dst)
		}
	}
	fmt.Fprintf(&b, `
Suggest %d non-obvious ideas that connect these entities in ways the notes
do not state directly. For each idea, output exactly two lines:
IDEA: <one-sentence idea>
EXPLANATION: <one or two sentences on why it might work>
`, n)
	return b.String()
}

// parseIdeas pulls IDEA/EXPLANATION pairs out of model output, tolerating
// prose or blank lines between them.
func parseIdeas(response string) []Idea {
	var ideas []Idea
	var current *Idea
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "IDEA:"):
			if current != nil && current.Text != "" {
				ideas = append(ideas, *current)
			}
			current = &Idea{Text: strings.TrimSpace(strings.TrimPrefix(line, "IDEA:"))}
		case strings.HasPrefix(line, "EXPLANATION:"):
			if current != nil {
				current.Explanation = strings.TrimSpace(strings.TrimPrefix(line, "EXPLANATION:"))
			}
		}
	}
	if current != nil && current.Text != "" {
		ideas = append(ideas, *current)
	}
	return ideas
}

func orderByIDs(entities []graph.Entity, ids []string) []graph.Entity {
	byID := make(map[string]graph.Entity, len(entities))
	for _, ent := range entities {
		byID[ent.ID] = ent
	}
	out := make([]graph.Entity, 0, len(ids))
	for _, id := range ids {
		if ent, ok := byID[id]; ok {
			out = append(out, ent)
		}
	}
	return out
}
