package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/newsgraph/pkg/common"
	"github.com/OFFIS-RIT/newsgraph/pkg/logger"
	"github.com/OFFIS-RIT/newsgraph/pkg/store"

	"golang.org/x/sync/errgroup"
)

// IngestSummary counts what one article's ingest did to the graph.
type IngestSummary struct {
	ArticleID              string   `json:"article_id"`
	EntitiesCreated        int      `json:"entities_created"`
	EntitiesUpdated        int      `json:"entities_updated"`
	EntitiesUnchanged      int      `json:"entities_unchanged"`
	RelationshipsCreated   int      `json:"relationships_created"`
	RelationshipsUpdated   int      `json:"relationships_updated"`
	RelationshipsUnchanged int      `json:"relationships_unchanged"`
	RelationshipsDropped   int      `json:"relationships_dropped"`
	Warnings               []string `json:"warnings,omitempty"`
}

func (s *IngestSummary) countEntity(o store.UpsertOutcome) {
	switch o {
	case store.Created:
		s.EntitiesCreated++
	case store.Updated:
		s.EntitiesUpdated++
	default:
		s.EntitiesUnchanged++
	}
}

func (s *IngestSummary) countRelationship(o store.UpsertOutcome) {
	switch o {
	case store.Created:
		s.RelationshipsCreated++
	case store.Updated:
		s.RelationshipsUpdated++
	default:
		s.RelationshipsUnchanged++
	}
}

// Ingest upserts the entities and relationships of one article. It is
// idempotent: ingesting the same article again leaves the graph unchanged.
//
// Entities are upserted first, in parallel; relationships follow once every
// entity is stored. The first store error aborts the ingest and is returned
// together with the partial summary.
func (g *Engine) Ingest(ctx context.Context, article common.Article, res common.ExtractionResult) (IngestSummary, error) {
	summary := IngestSummary{ArticleID: article.ID}
	at := g.now().UTC()

	entities, index, warnings := mergeEntities(res.Entities)
	for _, w := range warnings {
		logger.Warn("[Graph][Ingest] Entity dropped", "article_id", article.ID, "reason", w)
	}
	summary.Warnings = append(summary.Warnings, warnings...)

	relationships, dropped, warnings := mergeRelationships(res.Relationships, index)
	for _, w := range warnings {
		logger.Warn("[Graph][Ingest] Relationship dropped", "article_id", article.ID, "reason", w)
	}
	summary.Warnings = append(summary.Warnings, warnings...)
	summary.RelationshipsDropped = dropped

	var mu sync.Mutex
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelUpserts)
	for _, e := range entities {
		eg.Go(func() error {
			outcome, err := g.store.UpsertEntity(gCtx, store.EntityUpsert{
				ID:            e.id,
				Type:          e.typ,
				CanonicalName: e.canonical,
				DisplayName:   e.displayName,
				Description:   e.description,
				ArticleID:     article.ID,
				At:            at,
			})
			if err != nil {
				return err
			}
			mu.Lock()
			summary.countEntity(outcome)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return summary, fmt.Errorf("ingest article %s: %w", article.ID, err)
	}

	for _, r := range relationships {
		outcome, err := g.store.UpsertRelationship(ctx, store.RelationshipUpsert{
			ID:          r.id,
			SourceID:    r.sourceID,
			TargetID:    r.targetID,
			Type:        r.typ,
			Strength:    r.strength,
			Description: r.description,
			ArticleID:   article.ID,
			At:          at,
		})
		if err != nil {
			return summary, fmt.Errorf("ingest article %s: %w", article.ID, err)
		}
		summary.countRelationship(outcome)
	}

	logger.Debug("[Graph][Ingest] Article ingested",
		"article_id", article.ID,
		"entities_created", summary.EntitiesCreated,
		"entities_updated", summary.EntitiesUpdated,
		"relationships_created", summary.RelationshipsCreated,
		"relationships_dropped", summary.RelationshipsDropped,
	)
	return summary, nil
}

// Stats reports the size of the underlying graph.
func (g *Engine) Stats(ctx context.Context) (store.Stats, error) {
	return g.store.Stats(ctx)
}
