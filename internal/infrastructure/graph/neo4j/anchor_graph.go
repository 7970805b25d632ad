package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const (
	listAnchorsQuery = `
MATCH (a:Anchor)
WHERE coalesce(a.project_id, '') = '' OR a.project_id = $project
RETURN a.id AS id, a.slug AS slug, coalesce(a.label, '') AS label,
	coalesce(a.tags, []) AS tags, coalesce(a.is_focus_term, false) AS is_focus_term
ORDER BY slug, id`

	anchorWeightsQuery = `
MATCH (:Caller {id: $caller})-[w:WEIGHTS]->(a:Anchor)
RETURN a.slug AS slug, w.weight AS weight`
)

type queryRunner func(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error)

// AnchorGraph reads anchors and per-caller anchor weights from a concept graph.
type AnchorGraph struct {
	run queryRunner
}

func NewDriver(uri, username, password string) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return driver, nil
}

func NewAnchorGraph(driver neo4j.DriverWithContext, database string) *AnchorGraph {
	return &AnchorGraph{
		run: func(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
			result, err := neo4j.ExecuteQuery(ctx, driver, query, params,
				neo4j.EagerResultTransformer,
				neo4j.ExecuteQueryWithDatabase(database),
				neo4j.ExecuteQueryWithReadersRouting(),
			)
			if err != nil {
				return nil, err
			}
			return result.Records, nil
		},
	}
}

func (g *AnchorGraph) ListAnchors(ctx context.Context, scope domain.Scope) ([]domain.Anchor, error) {
	records, err := g.run(ctx, listAnchorsQuery, map[string]any{
		"project": strings.TrimSpace(scope.ProjectID),
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j list anchors: %w", err)
	}

	anchors := make([]domain.Anchor, 0, len(records))
	for _, record := range records {
		anchor, err := recordToAnchor(record)
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, anchor)
	}
	return anchors, nil
}

func (g *AnchorGraph) AnchorWeights(ctx context.Context, callerID string) (map[string]float64, error) {
	records, err := g.run(ctx, anchorWeightsQuery, map[string]any{"caller": callerID})
	if err != nil {
		return nil, fmt.Errorf("neo4j anchor weights: %w", err)
	}

	weights := make(map[string]float64, len(records))
	for _, record := range records {
		slug, _, err := neo4j.GetRecordValue[string](record, "slug")
		if err != nil {
			return nil, fmt.Errorf("read weight slug: %w", err)
		}
		raw, _ := record.Get("weight")
		weight, ok := toFloat(raw)
		if !ok || slug == "" {
			continue
		}
		weights[strings.ToLower(slug)] = weight
	}
	return weights, nil
}

func recordToAnchor(record *neo4j.Record) (domain.Anchor, error) {
	id, _, err := neo4j.GetRecordValue[string](record, "id")
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("read anchor id: %w", err)
	}
	slug, _, err := neo4j.GetRecordValue[string](record, "slug")
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("read anchor slug: %w", err)
	}
	label, _, err := neo4j.GetRecordValue[string](record, "label")
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("read anchor label: %w", err)
	}
	rawTags, _, err := neo4j.GetRecordValue[[]any](record, "tags")
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("read anchor tags: %w", err)
	}
	focus, _, err := neo4j.GetRecordValue[bool](record, "is_focus_term")
	if err != nil {
		return domain.Anchor{}, fmt.Errorf("read anchor focus flag: %w", err)
	}

	tags := make([]string, 0, len(rawTags))
	for _, tag := range rawTags {
		if s, ok := tag.(string); ok {
			tags = append(tags, s)
		}
	}
	return domain.Anchor{ID: id, Slug: slug, Label: label, Tags: tags, IsFocusTerm: focus}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
