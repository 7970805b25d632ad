package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

func anchorRecord(id, slug, label string, tags []any, focus bool) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"id", "slug", "label", "tags", "is_focus_term"},
		Values: []any{id, slug, label, tags, focus},
	}
}

func TestListAnchorsMapsRecords(t *testing.T) {
	var gotParams map[string]any
	graph := &AnchorGraph{run: func(_ context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
		assert.Equal(t, listAnchorsQuery, query)
		gotParams = params
		return []*neo4j.Record{
			anchorRecord("a1", "refund", "Refund policy", []any{"money-back", 7}, true),
			anchorRecord("a2", "sla", "", []any{}, false),
		}, nil
	}}

	anchors, err := graph.ListAnchors(context.Background(), domain.Scope{ProjectID: " p1 "})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"project": "p1"}, gotParams)
	require.Len(t, anchors, 2)
	assert.Equal(t, domain.Anchor{ID: "a1", Slug: "refund", Label: "Refund policy", Tags: []string{"money-back"}, IsFocusTerm: true}, anchors[0])
	assert.False(t, anchors[1].IsFocusTerm)
}

func TestListAnchorsWrapsDriverError(t *testing.T) {
	cause := errors.New("routing table unavailable")
	graph := &AnchorGraph{run: func(context.Context, string, map[string]any) ([]*neo4j.Record, error) {
		return nil, cause
	}}

	_, err := graph.ListAnchors(context.Background(), domain.Scope{})
	assert.ErrorIs(t, err, cause)
}

func TestAnchorWeightsAcceptsIntegerAndFloat(t *testing.T) {
	graph := &AnchorGraph{run: func(_ context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
		assert.Equal(t, anchorWeightsQuery, query)
		assert.Equal(t, "u1", params["caller"])
		return []*neo4j.Record{
			{Keys: []string{"slug", "weight"}, Values: []any{"Refund", 0.25}},
			{Keys: []string{"slug", "weight"}, Values: []any{"sla", int64(1)}},
			{Keys: []string{"slug", "weight"}, Values: []any{"broken", nil}},
		}, nil
	}}

	weights, err := graph.AnchorWeights(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"refund": 0.25, "sla": 1}, weights)
}
