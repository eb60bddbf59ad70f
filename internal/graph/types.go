package graph

import (
	"context"
	"errors"
	"time"
)

var (
	ErrGraphNotFound = errors.New("graph_not_found")
	ErrInvalidGraph  = errors.New("invalid_graph_id")
	ErrUpstream      = errors.New("graph_service_unavailable")
)

// Graph is a knowledge-graph document. Document holds the full decoded body so
// a read-modify-write keeps nodes, edges and unknown fields intact.
type Graph struct {
	ID       string
	Document map[string]any
}

// Metadata returns the graph's metadata object, creating it when absent.
func (g *Graph) Metadata() map[string]any {
	if g.Document == nil {
		g.Document = map[string]any{}
	}
	meta, ok := g.Document["metadata"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		g.Document["metadata"] = meta
	}
	return meta
}

// AffiliateMetadata is the denormalized ambassador summary stored on a graph
// under metadata.affiliates.
type AffiliateMetadata struct {
	HasAffiliates  bool      `json:"hasAffiliates"`
	AffiliateCount int64     `json:"affiliateCount"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

//go:generate mockgen -source=types.go -destination=mock/client_mock.go -package=mock

type Client interface {
	GetGraph(ctx context.Context, id string) (*Graph, error)
	Exists(ctx context.Context, id string) (bool, error)
	SaveAffiliateMetadata(ctx context.Context, id string, meta AffiliateMetadata) error
}
