package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brainbox0/brainbox/internal/log"
)

// minFuzzyQueryLen guards the substring fallback in FindEntity: shorter
// queries match too promiscuously to be useful.
const minFuzzyQueryLen = 3

// Store persists the knowledge graph in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

func NewStore(pool *pgxpool.Pool, logger *log.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("graph: pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// UpsertEntity merges one observed mention into the graph and returns the
// entity ID. Concurrent upserts of the same canonical name+type are
// serialized with a transaction-scoped advisory lock, so the merge is safe
// across processes. Weight grows only when the chunk has not contributed
// evidence for this entity before.
func (s *Store) UpsertEntity(ctx context.Context, name, entityType, description, chunkID string) (string, error) {
	key := CanonicalKey(name, entityType)
	id := NewEntityID(name, entityType)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin entity upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return "", fmt.Errorf("acquire entity lock: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO entities (id, canonical_key, name, type, description, weight)
		VALUES ($1, $2, $3, $4, $5, 0)
		ON CONFLICT (canonical_key) DO NOTHING`,
		id, key, name, strings.ToUpper(entityType), description,
	)
	if err != nil {
		return "", fmt.Errorf("insert entity: %w", err)
	}
	created := tag.RowsAffected() == 1

	if !created && description != "" {
		_, err = tx.Exec(ctx,
			`UPDATE entities SET description = $2 WHERE id = $1 AND description = ''`,
			id, description,
		)
		if err != nil {
			return "", fmt.Errorf("backfill entity description: %w", err)
		}
	}

	mention, err := tx.Exec(ctx, `
		INSERT INTO entity_mentions (entity_id, chunk_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		id, chunkID,
	)
	if err != nil {
		return "", fmt.Errorf("insert entity mention: %w", err)
	}
	if mention.RowsAffected() == 1 {
		if _, err := tx.Exec(ctx, `UPDATE entities SET weight = weight + 1 WHERE id = $1`, id); err != nil {
			return "", fmt.Errorf("bump entity weight: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit entity upsert: %w", err)
	}
	return id, nil
}

// UpsertRelation merges one observed edge. The conflict target
// (source, target, label) makes retries idempotent; the WHERE clause on
// the update keeps the weight tied to distinct provenance chunks.
func (s *Store) UpsertRelation(ctx context.Context, sourceID, targetID, label, chunkID string) (string, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		label = "RELATED_TO"
	}
	id := NewRelationID(sourceID, targetID, label)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO relations (id, source_entity_id, target_entity_id, label, weight, provenance)
		VALUES ($1, $2, $3, $4, 1, ARRAY[$5])
		ON CONFLICT (source_entity_id, target_entity_id, label) DO UPDATE
		SET weight     = relations.weight + 1,
		    provenance = array_append(relations.provenance, $5)
		WHERE NOT relations.provenance @> ARRAY[$5]`,
		id, sourceID, targetID, label, chunkID,
	)
	if err != nil {
		return "", fmt.Errorf("upsert relation: %w", err)
	}
	return id, nil
}

// FindEntity resolves a name to an entity. Exact case-insensitive match
// wins; otherwise a substring match is attempted for queries long enough
// to be discriminating. The heaviest candidate is returned.
func (s *Store) FindEntity(ctx context.Context, name string) (*Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEntityNotFound
	}

	ent, err := s.scanEntity(ctx,
		`SELECT id, name, type, description, weight, first_seen_at
		 FROM entities WHERE lower(name) = lower($1)
		 ORDER BY weight DESC LIMIT 1`, name)
	if err == nil {
		return ent, nil
	}
	if !errors.Is(err, ErrEntityNotFound) {
		return nil, err
	}

	if len(name) < minFuzzyQueryLen {
		return nil, ErrEntityNotFound
	}
	return s.scanEntity(ctx,
		`SELECT id, name, type, description, weight, first_seen_at
		 FROM entities WHERE lower(name) LIKE '%' || lower($1) || '%'
		 ORDER BY weight DESC LIMIT 1`, name)
}

// EntityByID loads a single entity.
func (s *Store) EntityByID(ctx context.Context, id string) (*Entity, error) {
	return s.scanEntity(ctx,
		`SELECT id, name, type, description, weight, first_seen_at
		 FROM entities WHERE id = $1`, id)
}

func (s *Store) scanEntity(ctx context.Context, query string, args ...any) (*Entity, error) {
	var e Entity
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&e.ID, &e.Name, &e.Type, &e.Description, &e.Weight, &e.FirstSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query entity: %w", err)
	}
	return &e, nil
}

// EntitiesByIDs loads a batch of entities; missing IDs are silently absent
// from the result.
func (s *Store) EntitiesByIDs(ctx context.Context, ids []string) ([]Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, type, description, weight, first_seen_at
		 FROM entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// AllRelations loads every edge, for in-memory traversal. The personal
// knowledge-base scale keeps this cheap.
func (s *Store) AllRelations(ctx context.Context) ([]Relation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_entity_id, target_entity_id, label, weight, provenance
		 FROM relations`)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

// RelationsOf loads the edges touching any of the given entities.
func (s *Store) RelationsOf(ctx context.Context, entityIDs []string) ([]Relation, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_entity_id, target_entity_id, label, weight, provenance
		 FROM relations
		 WHERE source_entity_id = ANY($1) OR target_entity_id = ANY($1)`,
		entityIDs)
	if err != nil {
		return nil, fmt.Errorf("query entity relations: %w", err)
	}
	defer rows.Close()
	return collectRelations(rows)
}

// MostConnected returns the entities with the highest degree, for surfacing
// graph hubs in stats and idea generation.
func (s *Store) MostConnected(ctx context.Context, limit int) ([]Entity, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.name, e.type, e.description, e.weight, e.first_seen_at
		FROM entities e
		JOIN (
			SELECT entity_id, count(*) AS degree FROM (
				SELECT source_entity_id AS entity_id FROM relations
				UNION ALL
				SELECT target_entity_id FROM relations
			) endpoints
			GROUP BY entity_id
		) d ON d.entity_id = e.id
		ORDER BY d.degree DESC, e.weight DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query most connected: %w", err)
	}
	defer rows.Close()
	return collectEntities(rows)
}

// RemoveProvenance retracts the evidence contributed by the given chunks,
// typically during a document purge. Entities and relations left without
// any supporting chunk are deleted.
func (s *Store) RemoveProvenance(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin provenance removal: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM entity_mentions WHERE chunk_id = ANY($1)`, chunkIDs); err != nil {
		return fmt.Errorf("delete entity mentions: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE entities e
		SET weight = m.cnt
		FROM (SELECT entity_id, count(*) AS cnt FROM entity_mentions GROUP BY entity_id) m
		WHERE m.entity_id = e.id AND e.weight <> m.cnt`); err != nil {
		return fmt.Errorf("recompute entity weights: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		DELETE FROM entities e
		WHERE NOT EXISTS (SELECT 1 FROM entity_mentions m WHERE m.entity_id = e.id)`); err != nil {
		return fmt.Errorf("delete orphaned entities: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE relations r
		SET provenance = COALESCE(
			(SELECT array_agg(p) FROM unnest(r.provenance) AS p WHERE NOT (p = ANY($1))),
			'{}'
		)
		WHERE r.provenance && $1`, chunkIDs); err != nil {
		return fmt.Errorf("trim relation provenance: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE relations SET weight = cardinality(provenance)
		WHERE weight <> cardinality(provenance)`); err != nil {
		return fmt.Errorf("recompute relation weights: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM relations WHERE cardinality(provenance) = 0`); err != nil {
		return fmt.Errorf("delete orphaned relations: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit provenance removal: %w", err)
	}
	s.logger.Debug("graph provenance removed", "chunks", len(chunkIDs))
	return nil
}

// Counts reports entity and relation totals for stats.
func (s *Store) Counts(ctx context.Context) (entities, relations int64, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM entities), (SELECT count(*) FROM relations)`,
	).Scan(&entities, &relations)
	if err != nil {
		return 0, 0, fmt.Errorf("count graph: %w", err)
	}
	return entities, relations, nil
}

func collectEntities(rows pgx.Rows) ([]Entity, error) {
	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.Description, &e.Weight, &e.FirstSeenAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func collectRelations(rows pgx.Rows) ([]Relation, error) {
	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.Label, &r.Weight, &r.Provenance); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
